package ranking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bill-advisor/internal/model"
)

func elecOffer(id, provider string, price, fee float64, green bool) model.EnergyOffer {
	return model.EnergyOffer{
		OfferID:             id,
		ProviderName:        provider,
		PlanName:            "Plan " + id,
		Commodity:           model.CommodityElectricity,
		PricingModel:        model.PricingFixed,
		UnitPriceEURPerKWh:  model.Float(price),
		FixedFeeEURPerMonth: fee,
		IsGreen:             green,
	}
}

func gasOffer(id, provider string, price, fee float64) model.EnergyOffer {
	return model.EnergyOffer{
		OfferID:             id,
		ProviderName:        provider,
		Commodity:           model.CommodityGas,
		PricingModel:        model.PricingVariable,
		UnitPriceEURPerSmc:  model.Float(price),
		FixedFeeEURPerMonth: fee,
	}
}

func elecProfile(total *float64) model.BillProfile {
	return model.BillProfile{
		BillKind:             model.Kind(model.BillElectricity),
		AnnualConsumptionKWh: model.Float(2700),
		TotalAnnualCostEUR:   total,
	}
}

func TestAnnualCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "696.00", AnnualCost(2700, 0.22, 8.50).StringFixed(2))
	assert.Equal(t, "1045.00", AnnualCost(1100, 0.95, 0).StringFixed(2))
	assert.Equal(t, "0.30", AnnualCost(1, 0.1, 0.0166666).StringFixed(2))
}

func TestRank_CostAndSaving(t *testing.T) {
	t.Parallel()

	offers := []model.EnergyOffer{
		elecOffer("b", "Edison", 0.30, 10, false),
		elecOffer("a", "Enel Energia", 0.22, 8.50, false),
	}
	ranked, err := Rank(elecProfile(model.Float(900)), offers)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "a", ranked[0].Offer.OfferID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.InDelta(t, 696.00, ranked[0].AnnualCostEUR, 1e-9)
	assert.InDelta(t, 204.00, ranked[0].AnnualSavingEUR, 1e-9)

	assert.Equal(t, 2, ranked[1].Rank)
	assert.InDelta(t, 930.00, ranked[1].AnnualCostEUR, 1e-9)
	assert.InDelta(t, -30.00, ranked[1].AnnualSavingEUR, 1e-9, "more expensive offers report a negative saving")
}

func TestRank_TieBreaks(t *testing.T) {
	t.Parallel()

	offers := []model.EnergyOffer{
		elecOffer("3", "Zeta", 0.22, 8.50, false),
		elecOffer("2", "Beta", 0.22, 8.50, false),
		elecOffer("1", "Alpha", 0.22, 8.50, false),
		elecOffer("4", "Omega", 0.22, 8.50, true),
	}
	ranked, err := Rank(elecProfile(model.Float(900)), offers)
	require.NoError(t, err)

	var ids []string
	for _, r := range ranked {
		ids = append(ids, r.Offer.OfferID)
		assert.InDelta(t, 696.00, r.AnnualCostEUR, 1e-9)
	}
	assert.Equal(t, []string{"4", "1", "2", "3"}, ids)
}

func TestRank_Deterministic(t *testing.T) {
	t.Parallel()

	offers := []model.EnergyOffer{
		elecOffer("x", "Same", 0.2, 5, false),
		elecOffer("y", "Same", 0.2, 5, false),
		elecOffer("z", "Other", 0.19, 5, true),
	}
	reversed := []model.EnergyOffer{offers[2], offers[1], offers[0]}

	first, err := Rank(elecProfile(model.Float(900)), offers)
	require.NoError(t, err)
	second, err := Rank(elecProfile(model.Float(900)), reversed)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestRank_EmptyResults(t *testing.T) {
	t.Parallel()

	offers := []model.EnergyOffer{elecOffer("a", "Enel Energia", 0.22, 8.50, false)}

	tests := []struct {
		name    string
		profile model.BillProfile
	}{
		{name: "null total", profile: elecProfile(nil)},
		{name: "null kind", profile: model.BillProfile{AnnualConsumptionKWh: model.Float(2700), TotalAnnualCostEUR: model.Float(900)}},
		{name: "null consumption", profile: model.BillProfile{BillKind: model.Kind(model.BillElectricity), TotalAnnualCostEUR: model.Float(900)}},
		{name: "total above range", profile: model.BillProfile{
			BillKind:             model.Kind(model.BillElectricity),
			AnnualConsumptionKWh: model.Float(2700),
			TotalAnnualCostEUR:   model.Float(99999),
		}},
		{name: "consumption above range", profile: model.BillProfile{
			BillKind:             model.Kind(model.BillElectricity),
			AnnualConsumptionKWh: model.Float(50000),
			TotalAnnualCostEUR:   model.Float(900),
		}},
		{name: "consumption and total out of range", profile: model.BillProfile{
			BillKind:             model.Kind(model.BillElectricity),
			AnnualConsumptionKWh: model.Float(50000),
			TotalAnnualCostEUR:   model.Float(99999),
		}},
		{name: "gas bill with electricity offers", profile: model.BillProfile{
			BillKind:             model.Kind(model.BillGas),
			AnnualConsumptionSmc: model.Float(900),
			TotalAnnualCostEUR:   model.Float(900),
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ranked, err := Rank(tt.profile, offers)
			require.NoError(t, err)
			assert.NotNil(t, ranked)
			assert.Empty(t, ranked)
		})
	}
}

func TestConsumption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		profile   model.BillProfile
		commodity model.Commodity
		want      float64
		ok        bool
	}{
		{name: "electricity", profile: model.BillProfile{AnnualConsumptionKWh: model.Float(2700)}, commodity: model.CommodityElectricity, want: 2700, ok: true},
		{name: "gas", profile: model.BillProfile{AnnualConsumptionSmc: model.Float(1100)}, commodity: model.CommodityGas, want: 1100, ok: true},
		{name: "missing", profile: model.BillProfile{}, commodity: model.CommodityElectricity},
		{name: "zero", profile: model.BillProfile{AnnualConsumptionKWh: model.Float(0)}, commodity: model.CommodityElectricity},
		{name: "kwh above range", profile: model.BillProfile{AnnualConsumptionKWh: model.Float(50000)}, commodity: model.CommodityElectricity},
		{name: "smc below range", profile: model.BillProfile{AnnualConsumptionSmc: model.Float(10)}, commodity: model.CommodityGas},
		{name: "unknown commodity", profile: model.BillProfile{AnnualConsumptionKWh: model.Float(2700)}, commodity: model.Commodity("water")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Consumption(tt.profile, tt.commodity)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRank_SkipsUnpricedOffers(t *testing.T) {
	t.Parallel()

	unpriced := elecOffer("u", "Acme", 0, 5, false)
	unpriced.UnitPriceEURPerKWh = nil

	ranked, err := Rank(elecProfile(model.Float(900)), []model.EnergyOffer{unpriced, elecOffer("a", "Enel Energia", 0.22, 8.50, false)})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "a", ranked[0].Offer.OfferID)
}

func TestRank_MissingCommodityIsError(t *testing.T) {
	t.Parallel()

	bad := elecOffer("bad", "Acme", 0.2, 5, false)
	bad.Commodity = ""

	_, err := Rank(elecProfile(model.Float(900)), []model.EnergyOffer{bad})
	assert.ErrorIs(t, err, model.ErrMissingCommodity)
}

func TestRank_Combined(t *testing.T) {
	t.Parallel()

	profile := model.BillProfile{
		BillKind:             model.Kind(model.BillCombined),
		AnnualConsumptionKWh: model.Float(2700),
		AnnualConsumptionSmc: model.Float(1100),
		TotalAnnualCostEUR:   model.Float(2000),
	}
	offers := []model.EnergyOffer{
		gasOffer("g2", "Eni Plenitude", 1.00, 0),
		elecOffer("e1", "Enel Energia", 0.22, 8.50, false),
		gasOffer("g1", "Edison", 0.95, 0),
	}

	ranked, err := Rank(profile, offers)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "e1", ranked[0].Offer.OfferID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "g1", ranked[1].Offer.OfferID)
	assert.Equal(t, 1, ranked[1].Rank)
	assert.InDelta(t, 1045.00, ranked[1].AnnualCostEUR, 1e-9)
	assert.InDelta(t, 955.00, ranked[1].AnnualSavingEUR, 1e-9)
	assert.Equal(t, "g2", ranked[2].Offer.OfferID)
	assert.Equal(t, 2, ranked[2].Rank)

	best, ok := Best(ranked, model.CommodityGas)
	require.True(t, ok)
	assert.Equal(t, "g1", best.Offer.OfferID)
}

func TestRank_CombinedMissingOneConsumption(t *testing.T) {
	t.Parallel()

	profile := model.BillProfile{
		BillKind:             model.Kind(model.BillCombined),
		AnnualConsumptionKWh: model.Float(2700),
		TotalAnnualCostEUR:   model.Float(2000),
	}
	ranked, err := Rank(profile, []model.EnergyOffer{
		elecOffer("e1", "Enel Energia", 0.22, 8.50, false),
		gasOffer("g1", "Edison", 0.95, 0),
	})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, model.CommodityElectricity, ranked[0].Offer.Commodity)
}
