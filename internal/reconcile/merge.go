// Package reconcile merges template and AI extraction results into one
// authoritative bill profile.
package reconcile

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

// Reconciler applies a merge policy.
type Reconciler struct {
	cfg *Config
}

// New creates a Reconciler. A nil config uses DefaultConfig.
func New(cfg *Config) *Reconciler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Reconciler{cfg: cfg}
}

// Config returns the policy in use.
func (r *Reconciler) Config() *Config { return r.cfg }

// Merge reconciles the two candidate sets using the default policy.
func Merge(template, ai model.Candidates) model.BillProfile {
	return New(nil).Merge(template, ai)
}

// Merge reconciles the two candidate sets into a profile.
func (r *Reconciler) Merge(template, ai model.Candidates) model.BillProfile {
	return r.MergeDetailed(template, ai).Profile
}

// MergeDetailed reconciles the two candidate sets and reports how each
// field was decided. For every field, in order:
//
//  1. a template candidate at or above the template threshold wins;
//  2. else an AI candidate at or above the AI threshold wins;
//  3. else any template value wins;
//  4. else any AI value, else null.
//
// A known supplier from the template always wins. Candidates failing
// their field bounds are never used.
func (r *Reconciler) MergeDetailed(template, ai model.Candidates) Result {
	res := Result{
		Profile:     model.BillProfile{FieldConfidence: make(map[model.FieldName]float64)},
		Resolutions: make(map[model.FieldName]FieldResolution),
	}

	for _, spec := range model.Fields() {
		fr := r.resolve(spec, template, ai)
		if fr.Winner != nil {
			res.Profile.Set(spec.Name, fr.Winner.Value)
			res.Profile.FieldConfidence[spec.Name] = fr.Winner.Confidence
			res.FieldsResolved++
		}
		res.FieldsTotal++
		res.Resolutions[spec.Name] = fr
	}

	zap.L().Debug("reconcile: merged",
		zap.Int("template_fields", len(template)),
		zap.Int("ai_fields", len(ai)),
		zap.Int("resolved", res.FieldsResolved),
	)
	return res
}

func (r *Reconciler) resolve(spec model.FieldSpec, template, ai model.Candidates) FieldResolution {
	fr := FieldResolution{Field: spec.Name, Rule: RuleNone, Threshold: r.cfg.For(spec.Name)}

	t, tOK := usable(spec, template, model.SourceTemplate, &fr)
	a, aOK := usable(spec, ai, model.SourceAI, &fr)

	win := func(sv SourceValue, rule Rule) FieldResolution {
		fr.Winner, fr.Rule, fr.Resolved = &sv, rule, true
		return fr
	}

	if spec.Name == model.FieldSupplierName {
		if tOK && !isUnknown(t.Value) {
			return win(t, RuleProviderOverride)
		}
		tOK = false
		aOK = aOK && !isUnknown(a.Value)
	}

	switch {
	case tOK && t.Confidence >= fr.Threshold.Template:
		return win(t, RuleTemplateConfident)
	case aOK && a.Confidence >= fr.Threshold.AI:
		return win(a, RuleAIConfident)
	case tOK:
		return win(t, RuleTemplateFallback)
	case aOK:
		return win(a, RuleAIFallback)
	}
	return fr
}

// usable returns the candidate for a field if it carries a value that
// passes the field's bounds. Every non-null candidate is recorded as an
// attempt, with its violation if rejected.
func usable(spec model.FieldSpec, cs model.Candidates, src model.CandidateSource, fr *FieldResolution) (SourceValue, bool) {
	c, ok := cs[spec.Name]
	if !ok || c.Value == nil {
		return SourceValue{}, false
	}
	sv := SourceValue{Source: src, Value: normalize(spec, c.Value), Confidence: clampConfidence(c.Confidence)}
	if s, isStr := sv.Value.(string); isStr && strings.TrimSpace(s) == "" {
		return SourceValue{}, false
	}
	sv.Violation = spec.Check(sv.Value)
	fr.Attempts = append(fr.Attempts, sv)
	if sv.Violation != "" {
		zap.L().Debug("reconcile: candidate rejected",
			zap.String("field", string(spec.Name)),
			zap.String("source", string(src)),
			zap.String("violation", sv.Violation),
		)
		return sv, false
	}
	return sv, true
}

// normalize coerces candidate values into the field's canonical shape.
func normalize(spec model.FieldSpec, v any) any {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		switch spec.Kind {
		case model.KindIdentifier:
			return strings.ToUpper(strings.ReplaceAll(x, " ", ""))
		case model.KindEnum:
			return strings.ToLower(x)
		}
		return x
	case int:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

func isUnknown(v any) bool {
	s, _ := v.(string)
	return strings.EqualFold(s, model.UnknownProvider)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
