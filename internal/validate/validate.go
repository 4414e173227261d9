// Package validate checks a bill profile against the declared field bounds
// and scores how much of it can be trusted as a whole.
package validate

import (
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

// Penalty factors applied by ConfidenceScore.
const (
	PenaltyMissingTotal       = 0.5
	PenaltyMissingConsumption = 0.7
	PenaltyUnitPriceRange     = 0.7
	PenaltyConsumptionRange   = 0.7
	PenaltyMalformedPOD       = 0.85
	PenaltyMalformedPDR       = 0.85
)

// Report is the outcome of a range check.
type Report struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// ValidateRanges checks every non-null field of p. Null fields are not
// violations; an extraction miss is reported elsewhere.
func ValidateRanges(p model.BillProfile) Report {
	r := Report{Violations: []string{}}
	for _, spec := range model.Fields() {
		v := p.Get(spec.Name)
		if v == nil {
			continue
		}
		if msg := spec.Check(v); msg != "" {
			r.Violations = append(r.Violations, msg)
		}
	}
	r.Valid = len(r.Violations) == 0
	if !r.Valid {
		zap.L().Debug("validate: range violations",
			zap.Strings("violations", r.Violations),
		)
	}
	return r
}

// ConfidenceScore returns a record-level score in [0,1]. It starts at 1 and
// is multiplied by each applicable penalty, so the order of checks does not
// matter.
func ConfidenceScore(p model.BillProfile) float64 {
	score := 1.0

	if p.TotalAnnualCostEUR == nil || *p.TotalAnnualCostEUR <= 0 {
		score *= PenaltyMissingTotal
	}
	if !hasConsumption(p) {
		score *= PenaltyMissingConsumption
	}
	if outOfRange(model.FieldUnitPriceEURPerKWh, p.UnitPriceEURPerKWh) ||
		outOfRange(model.FieldUnitPriceEURPerSmc, p.UnitPriceEURPerSmc) {
		score *= PenaltyUnitPriceRange
	}
	if outOfRange(model.FieldAnnualConsumptionKWh, p.AnnualConsumptionKWh) ||
		outOfRange(model.FieldAnnualConsumptionSmc, p.AnnualConsumptionSmc) {
		score *= PenaltyConsumptionRange
	}
	if malformed(model.FieldPointOfDelivery, p.PointOfDeliveryCode) {
		score *= PenaltyMalformedPOD
	}
	if malformed(model.FieldPointOfRedelivery, p.PointOfRedeliveryCode) {
		score *= PenaltyMalformedPDR
	}

	return clamp(score)
}

// hasConsumption reports whether the consumption the bill kind needs is
// present and positive. Without a kind, either commodity counts; a
// combined bill needs both.
func hasConsumption(p model.BillProfile) bool {
	kwh := positive(p.AnnualConsumptionKWh)
	smc := positive(p.AnnualConsumptionSmc)
	switch p.Kind() {
	case model.BillElectricity:
		return kwh
	case model.BillGas:
		return smc
	case model.BillCombined:
		return kwh && smc
	}
	return kwh || smc
}

func positive(f *float64) bool {
	return f != nil && *f > 0
}

func outOfRange(name model.FieldName, f *float64) bool {
	if f == nil {
		return false
	}
	spec, _ := model.Spec(name)
	return !spec.InRange(*f)
}

func malformed(name model.FieldName, s *string) bool {
	if s == nil {
		return false
	}
	spec, _ := model.Spec(name)
	return !spec.Pattern.MatchString(*s)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
