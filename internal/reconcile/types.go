package reconcile

import "github.com/sells-group/bill-advisor/internal/model"

// Rule names the merge step that decided a field.
type Rule string

// Merge rules, in evaluation order.
const (
	RuleProviderOverride  Rule = "provider_override"
	RuleTemplateConfident Rule = "template_confident"
	RuleAIConfident       Rule = "ai_confident"
	RuleTemplateFallback  Rule = "template_fallback"
	RuleAIFallback        Rule = "ai_fallback"
	RuleNone              Rule = "none"
)

// SourceValue is one candidate considered for a field.
type SourceValue struct {
	Source     model.CandidateSource `json:"source"`
	Value      any                   `json:"value"`
	Confidence float64               `json:"confidence"`
	Violation  string                `json:"violation,omitempty"`
}

// FieldResolution is the outcome of merging a single field.
type FieldResolution struct {
	Field     model.FieldName `json:"field"`
	Resolved  bool            `json:"resolved"`
	Winner    *SourceValue    `json:"winner,omitempty"`
	Rule      Rule            `json:"rule"`
	Threshold Thresholds      `json:"threshold"`
	Attempts  []SourceValue   `json:"attempts"`
}

// Result is the full merge output.
type Result struct {
	Profile        model.BillProfile                   `json:"profile"`
	Resolutions    map[model.FieldName]FieldResolution `json:"resolutions"`
	FieldsResolved int                                 `json:"fields_resolved"`
	FieldsTotal    int                                 `json:"fields_total"`
}

// Violations lists every candidate rejected for failing its field bounds.
func (r *Result) Violations() []string {
	var out []string
	for _, spec := range model.Fields() {
		res, ok := r.Resolutions[spec.Name]
		if !ok {
			continue
		}
		for _, a := range res.Attempts {
			if a.Violation != "" {
				out = append(out, string(a.Source)+": "+a.Violation)
			}
		}
	}
	return out
}
