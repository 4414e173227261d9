// Package ranking computes the annual cost of energy offers for a bill
// profile and orders them cheapest first.
package ranking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

var monthsPerYear = decimal.NewFromInt(12)

// AnnualCost returns consumption*unitPrice + monthlyFee*12, rounded to
// cents.
func AnnualCost(consumption, unitPrice, monthlyFee float64) decimal.Decimal {
	energy := decimal.NewFromFloat(consumption).Mul(decimal.NewFromFloat(unitPrice))
	fees := decimal.NewFromFloat(monthlyFee).Mul(monthsPerYear)
	return energy.Add(fees).Round(2)
}

// Rank prices every offer matching the profile's commodity and returns them
// cheapest first with 1-based ranks. Ties go to green offers, then provider
// name, then plan name, then offer id.
//
// The result is empty when the profile has no bill kind, no total, or no
// consumption for the commodity being ranked. Totals and consumptions
// outside their field range count as missing. Offers without a unit price
// for their commodity are skipped. A combined bill is ranked as two
// independent lists, electricity then gas, each ranked from 1. An offer
// with no valid commodity is a malformed catalog and returns an error
// wrapping model.ErrMissingCommodity.
func Rank(profile model.BillProfile, offers []model.EnergyOffer) ([]model.RankedOffer, error) {
	for _, o := range offers {
		if o.Commodity != model.CommodityElectricity && o.Commodity != model.CommodityGas {
			return nil, eris.Wrapf(model.ErrMissingCommodity, "ranking: offer %q", o.OfferID)
		}
	}

	out := []model.RankedOffer{}
	if !usable(model.FieldTotalAnnualCostEUR, profile.TotalAnnualCostEUR) {
		zap.L().Debug("ranking: no usable current total, nothing to compare")
		return out, nil
	}
	total := decimal.NewFromFloat(*profile.TotalAnnualCostEUR)

	for _, c := range commodities(profile.Kind()) {
		out = append(out, rankCommodity(profile, c, total, offers)...)
	}
	return out, nil
}

func commodities(k model.BillKind) []model.Commodity {
	switch k {
	case model.BillElectricity:
		return []model.Commodity{model.CommodityElectricity}
	case model.BillGas:
		return []model.Commodity{model.CommodityGas}
	case model.BillCombined:
		return []model.Commodity{model.CommodityElectricity, model.CommodityGas}
	}
	return nil
}

type priced struct {
	offer model.EnergyOffer
	cost  decimal.Decimal
}

func rankCommodity(profile model.BillProfile, c model.Commodity, total decimal.Decimal, offers []model.EnergyOffer) []model.RankedOffer {
	consumption, ok := Consumption(profile, c)
	if !ok {
		zap.L().Debug("ranking: no consumption for commodity", zap.String("commodity", string(c)))
		return nil
	}

	var rows []priced
	skipped := 0
	for _, o := range offers {
		if o.Commodity != c {
			continue
		}
		price, ok := o.UnitPrice()
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, priced{offer: o, cost: AnnualCost(consumption, price, o.FixedFeeEURPerMonth)})
	}

	slices.SortStableFunc(rows, compare)

	out := make([]model.RankedOffer, 0, len(rows))
	for i, r := range rows {
		cost, _ := r.cost.Float64()
		saving, _ := total.Sub(r.cost).Round(2).Float64()
		out = append(out, model.RankedOffer{
			Offer:           r.offer,
			AnnualCostEUR:   cost,
			AnnualSavingEUR: saving,
			Rank:            i + 1,
		})
	}

	zap.L().Debug("ranking: ranked commodity",
		zap.String("commodity", string(c)),
		zap.Int("ranked", len(out)),
		zap.Int("skipped_unpriced", skipped),
	)
	return out
}

func compare(a, b priced) int {
	if n := a.cost.Cmp(b.cost); n != 0 {
		return n
	}
	if a.offer.IsGreen != b.offer.IsGreen {
		if a.offer.IsGreen {
			return -1
		}
		return 1
	}
	if n := strings.Compare(a.offer.ProviderName, b.offer.ProviderName); n != 0 {
		return n
	}
	if n := strings.Compare(a.offer.PlanName, b.offer.PlanName); n != 0 {
		return n
	}
	return cmp.Compare(a.offer.OfferID, b.offer.OfferID)
}

// Consumption returns the profile's in-range consumption for a commodity.
func Consumption(p model.BillProfile, c model.Commodity) (float64, bool) {
	var (
		v    *float64
		name model.FieldName
	)
	switch c {
	case model.CommodityElectricity:
		v, name = p.AnnualConsumptionKWh, model.FieldAnnualConsumptionKWh
	case model.CommodityGas:
		v, name = p.AnnualConsumptionSmc, model.FieldAnnualConsumptionSmc
	default:
		return 0, false
	}
	if !usable(name, v) {
		return 0, false
	}
	return *v, true
}

// usable reports whether v is set, positive and inside the field's range.
func usable(name model.FieldName, v *float64) bool {
	if v == nil || *v <= 0 {
		return false
	}
	spec, ok := model.Spec(name)
	return ok && spec.InRange(*v)
}

// Best returns the cheapest offer of a ranking for a commodity.
func Best(ranked []model.RankedOffer, c model.Commodity) (model.RankedOffer, bool) {
	for _, r := range ranked {
		if r.Offer.Commodity == c && r.Rank == 1 {
			return r, true
		}
	}
	return model.RankedOffer{}, false
}
