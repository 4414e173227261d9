// Package extract pulls known bill fields out of raw bill text with
// anchored regular expressions. It makes no external calls.
package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/provider"
)

// Confidence levels assigned to template candidates.
const (
	ConfidenceNumber     = 0.95
	ConfidenceIdentifier = 0.98
	ConfidenceProvider   = 0.95
	ConfidenceRaw        = 0.3
)

// labelWindow is how far before an identifier its label is looked for.
const labelWindow = 40

// Extractor runs the template extraction.
type Extractor struct {
	resolver *provider.Resolver
}

// New creates an Extractor. A nil resolver uses the default rule table.
func New(resolver *provider.Resolver) *Extractor {
	if resolver == nil {
		resolver = provider.NewResolver(nil)
	}
	return &Extractor{resolver: resolver}
}

// Extract returns one candidate per field found in text. Fields with no
// match are absent from the map. It never fails.
func (e *Extractor) Extract(text string) model.Candidates {
	out := make(model.Candidates)
	if strings.TrimSpace(text) == "" {
		return out
	}

	if rule, ok := e.resolver.Match(text); ok {
		out[model.FieldSupplierName] = candidate(model.FieldSupplierName, rule.Canonical, ConfidenceProvider)
	}

	for _, r := range identifierRules {
		if code, ok := findIdentifier(text, r); ok {
			out[r.field] = candidate(r.field, code, ConfidenceIdentifier)
		}
	}

	// Bill kind is a structural signal: which identifier was found.
	switch {
	case has(out, model.FieldPointOfDelivery):
		out[model.FieldBillKind] = candidate(model.FieldBillKind, string(model.BillElectricity), ConfidenceIdentifier)
	case has(out, model.FieldPointOfRedelivery):
		out[model.FieldBillKind] = candidate(model.FieldBillKind, string(model.BillGas), ConfidenceIdentifier)
	}

	for _, r := range numericRules {
		if c, ok := findNumber(text, r); ok {
			out[r.field] = c
		}
	}

	zap.L().Debug("extract: template extraction done",
		zap.Int("text_len", len(text)),
		zap.Int("fields", len(out)),
	)
	return out
}

func candidate(field model.FieldName, v any, conf float64) model.BillFieldCandidate {
	return model.BillFieldCandidate{
		Field:      field,
		Value:      v,
		Confidence: conf,
		Source:     model.SourceTemplate,
	}
}

func has(c model.Candidates, f model.FieldName) bool {
	_, ok := c[f]
	return ok
}

// findIdentifier returns the best well-formed occurrence of an identifier:
// the first one labelled with r.prefer, else the first unlabelled one.
// An occurrence is skipped when a reject label (IBAN) is the label nearest
// to it, so an IBAN line directly above a POD line does not hide the POD.
func findIdentifier(text string, r identifierRule) (string, bool) {
	spec, _ := model.Spec(r.field)

	var fallback string
	for _, loc := range r.re.FindAllStringIndex(text, -1) {
		code := strings.ToUpper(text[loc[0]:loc[1]])
		if !spec.Pattern.MatchString(code) || !strings.ContainsAny(code, "0123456789") {
			continue
		}
		label := strings.ToLower(text[max(0, loc[0]-labelWindow):loc[0]])
		preferAt := strings.LastIndex(label, r.prefer)
		if lastIndexAny(label, r.reject) > preferAt {
			continue
		}
		if preferAt >= 0 {
			return code, true
		}
		if fallback == "" {
			fallback = code
		}
	}
	return fallback, fallback != ""
}

// findNumber returns the candidate for a numeric field. In-range values win,
// preferring occurrences whose anchor mentions an annual figure. A match
// that cannot be parsed is kept as a low-confidence raw string; a parsed
// value outside the field's range is dropped.
func findNumber(text string, r numericRule) (model.BillFieldCandidate, bool) {
	spec, _ := model.Spec(r.field)

	var (
		best       *model.BillFieldCandidate
		bestAnnual bool
		raw        string
	)
	consider := func(re *regexp.Regexp) {
		if re == nil {
			return
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			num := m[2]
			v, err := ParseNumber(num, r.thousands)
			if err != nil {
				if raw == "" {
					raw = num
				}
				continue
			}
			if !spec.InRange(v) {
				continue
			}
			annual := strings.Contains(strings.ToLower(m[0]), "annu")
			if best == nil || (annual && !bestAnnual) {
				c := candidate(r.field, v, ConfidenceNumber)
				best, bestAnnual = &c, annual
			}
		}
	}
	consider(r.re)
	consider(r.prefixRe)

	if best != nil {
		return *best, true
	}
	if raw != "" {
		return candidate(r.field, raw, ConfidenceRaw), true
	}
	return model.BillFieldCandidate{}, false
}

// lastIndexAny returns the largest index of any of subs in s, or -1.
func lastIndexAny(s string, subs []string) int {
	last := -1
	for _, sub := range subs {
		last = max(last, strings.LastIndex(s, sub))
	}
	return last
}
