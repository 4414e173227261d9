package aiextract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/model"
)

// DefaultConfidence is assigned to a value the vendor returned without a
// confidence.
const DefaultConfidence = 0.5

// ResponseSchema is the JSON Schema every vendor reply must satisfy.
var ResponseSchema = buildResponseSchema()

var compiledSchema = mustCompile(ResponseSchema)

func buildResponseSchema() map[string]any {
	props := map[string]any{}
	for _, f := range model.Fields() {
		switch f.Kind {
		case model.KindNumber:
			// Some vendors quote numbers; DecodeResponse parses them.
			props[string(f.Name)] = map[string]any{"type": []string{"number", "string", "null"}}
		case model.KindIdentifier:
			// An all-digit PDR may come back unquoted.
			props[string(f.Name)] = map[string]any{"type": []string{"string", "number", "null"}}
		default:
			props[string(f.Name)] = map[string]any{"type": []string{"string", "null"}}
		}
	}
	props["confidence"] = map[string]any{
		"type":                 []string{"object", "null"},
		"additionalProperties": map[string]any{"type": []string{"number", "null"}, "minimum": 0, "maximum": 100},
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func mustCompile(schema map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("bill.json", bytes.NewReader(b)); err != nil {
		panic(err)
	}
	return c.MustCompile("bill.json")
}

// DecodeResponse turns a vendor reply into AI candidates. The reply may be
// wrapped in a markdown code fence or surrounded by prose. Confidences
// above 1 are read as percentages.
func DecodeResponse(raw string) (model.Candidates, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, eris.New("aiextract: empty response")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, eris.Wrap(err, "aiextract: response is not a JSON object")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, eris.Wrap(err, "aiextract: response does not match schema")
	}

	conf, _ := doc["confidence"].(map[string]any)
	out := make(model.Candidates)
	for _, f := range model.Fields() {
		v, ok := value(f, doc[string(f.Name)])
		if !ok {
			continue
		}
		c := DefaultConfidence
		if n, isNum := conf[string(f.Name)].(float64); isNum {
			c = normalizeConfidence(n)
		}
		out[f.Name] = model.BillFieldCandidate{Field: f.Name, Value: v, Confidence: c, Source: model.SourceAI}
	}
	return out, nil
}

// value converts one JSON value into the candidate shape for its field.
// Strings that do not parse for a numeric field, and identifiers sent as
// numbers, are kept so the reconciler can check them.
func value(f model.FieldSpec, v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case float64:
		switch f.Kind {
		case model.KindNumber:
			return x, true
		case model.KindIdentifier:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		}
		return nil, false
	case string:
		x = strings.TrimSpace(x)
		if x == "" || strings.EqualFold(x, "null") {
			return nil, false
		}
		if f.Kind != model.KindNumber {
			return x, true
		}
		n, err := extract.ParseNumber(stripUnit(x), isQuantity(f.Name))
		if err != nil {
			return x, true
		}
		return n, true
	}
	return nil, false
}

func isQuantity(f model.FieldName) bool {
	switch f {
	case model.FieldAnnualConsumptionKWh, model.FieldAnnualConsumptionSmc, model.FieldTotalAnnualCostEUR:
		return true
	}
	return false
}

// stripUnit drops a currency sign or unit around a quoted number.
func stripUnit(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != ',' && r != '.' && r != '-'
	})
}

func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	return min(max(c, 0), 1)
}

// cleanJSON strips code fences and any prose around the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
