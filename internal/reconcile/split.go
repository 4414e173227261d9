package reconcile

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

// ErrNotSplittable is returned when a profile is not a combined bill with a
// joint total.
var ErrNotSplittable = errors.New("profile is not a combined bill with a joint total")

// SplitCombinedTotal turns a combined bill with only a joint total into two
// single-commodity profiles, attributing share of the total to electricity
// and the rest to gas. It is an estimate and is logged as such. A split
// total that falls outside the declared bounds is left null.
func SplitCombinedTotal(p model.BillProfile, share float64) (elec, gas model.BillProfile, err error) {
	if p.Kind() != model.BillCombined || p.TotalAnnualCostEUR == nil {
		return elec, gas, eris.Wrapf(ErrNotSplittable, "reconcile: kind %q", p.Kind())
	}
	if share <= 0 || share >= 1 {
		return elec, gas, eris.Errorf("reconcile: electricity share must be in (0,1), got %g", share)
	}

	total := decimal.NewFromFloat(*p.TotalAnnualCostEUR)
	elecTotal := total.Mul(decimal.NewFromFloat(share)).Round(2)
	gasTotal := total.Sub(elecTotal)

	elec = p.Clone()
	elec.ID = ""
	elec.BillKind = model.Kind(model.BillElectricity)
	clearFields(&elec, model.FieldPointOfRedelivery, model.FieldAnnualConsumptionSmc, model.FieldUnitPriceEURPerSmc)
	setTotal(&elec, elecTotal)

	gas = p.Clone()
	gas.ID = ""
	gas.BillKind = model.Kind(model.BillGas)
	clearFields(&gas, model.FieldPointOfDelivery, model.FieldAnnualConsumptionKWh, model.FieldUnitPriceEURPerKWh)
	setTotal(&gas, gasTotal)

	zap.L().Info("reconcile: split combined total by policy",
		zap.Float64("total_eur", *p.TotalAnnualCostEUR),
		zap.Float64("electricity_share", share),
		zap.String("electricity_eur", elecTotal.StringFixed(2)),
		zap.String("gas_eur", gasTotal.StringFixed(2)),
	)
	return elec, gas, nil
}

func clearFields(p *model.BillProfile, names ...model.FieldName) {
	for _, n := range names {
		p.Set(n, nil)
		delete(p.FieldConfidence, n)
	}
}

func setTotal(p *model.BillProfile, d decimal.Decimal) {
	v, _ := d.Float64()
	spec, _ := model.Spec(model.FieldTotalAnnualCostEUR)
	if !spec.InRange(v) {
		clearFields(p, model.FieldTotalAnnualCostEUR)
		return
	}
	p.TotalAnnualCostEUR = &v
}
