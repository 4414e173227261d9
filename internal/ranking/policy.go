package ranking

import (
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

// ConfidenceAssumed marks a value filled in by policy rather than read
// from the bill.
const ConfidenceAssumed = 0.0

// WithDefaultConsumption returns a copy of p with missing consumption
// replaced by the given defaults. A zero default leaves the field alone.
// Every substitution is logged so it stays traceable; Rank never does this
// on its own.
func WithDefaultConsumption(p model.BillProfile, kwh, smc float64) model.BillProfile {
	out := p.Clone()
	fill := func(field model.FieldName, cur **float64, v float64, want bool) {
		if !want || v <= 0 || (*cur != nil && **cur > 0) {
			return
		}
		*cur = model.Float(v)
		out.FieldConfidence[field] = ConfidenceAssumed
		zap.L().Info("ranking: assumed default consumption",
			zap.String("profile_id", p.ID),
			zap.String("field", string(field)),
			zap.Float64("value", v),
		)
	}

	k := p.Kind()
	fill(model.FieldAnnualConsumptionKWh, &out.AnnualConsumptionKWh, kwh, k == model.BillElectricity || k == model.BillCombined)
	fill(model.FieldAnnualConsumptionSmc, &out.AnnualConsumptionSmc, smc, k == model.BillGas || k == model.BillCombined)
	return out
}
