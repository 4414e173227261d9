package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bill-advisor/internal/aiextract"
	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/ocr"
	"github.com/sells-group/bill-advisor/internal/provider"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/internal/store"
)

const electricityBill = `ENEL ENERGIA S.p.A. - Bolletta luce
Codice POD: IT001E12345678
Consumo annuo: 2.700 kWh
Prezzo energia: 0,22 €/kWh
Quota fissa: 8,50 €/mese
Spesa annua stimata: 900,00 €
`

// countingAI records how often it is called.
type countingAI struct {
	cands model.Candidates
	err   error
	calls atomic.Int32
}

func (c *countingAI) Name() string { return "counting" }

func (c *countingAI) ExtractViaAI(context.Context, string) (model.Candidates, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.cands, nil
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "bills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func offers() []model.EnergyOffer {
	return []model.EnergyOffer{
		{OfferID: "a", ProviderName: "A2A Energia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.22), FixedFeeEURPerMonth: 8.5},
		{OfferID: "b", ProviderName: "Sorgenia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.22), FixedFeeEURPerMonth: 8.5, IsGreen: true},
		{OfferID: "c", ProviderName: "Iren", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.30), FixedFeeEURPerMonth: 5},
		{OfferID: "g", ProviderName: "Eni Plenitude", Commodity: model.CommodityGas, UnitPriceEURPerSmc: model.Float(0.9), FixedFeeEURPerMonth: 10},
	}
}

func TestExtract_TemplateOnly(t *testing.T) {
	t.Parallel()

	a := New(Deps{}, Options{})
	out, err := a.Extract(context.Background(), Input{Text: electricityBill})
	require.NoError(t, err)

	p := out.Profile
	require.NotNil(t, p.SupplierName)
	assert.Equal(t, "Enel Energia", *p.SupplierName)
	assert.Equal(t, model.BillElectricity, p.Kind())
	assert.InDelta(t, 900, *p.TotalAnnualCostEUR, 1e-9)
	assert.Equal(t, "static", out.AIProvider)
	assert.Empty(t, out.AIError)
	assert.Greater(t, out.Confidence, 0.0)
	assert.Empty(t, p.ID, "extract does not persist")
}

func TestExtract_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{}).Extract(context.Background(), Input{Text: "  \n"})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestExtract_AIFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ai := &countingAI{err: errors.New("vendor down")}
	out, err := New(Deps{AI: ai}, Options{}).Extract(context.Background(), Input{Text: electricityBill})
	require.NoError(t, err)

	assert.Equal(t, "vendor down", out.AIError)
	assert.Equal(t, int32(1), ai.calls.Load())
	assert.InDelta(t, 0.22, *out.Profile.UnitPriceEURPerKWh, 1e-9)
}

func TestExtract_ConfidentTemplateBeatsAI(t *testing.T) {
	t.Parallel()

	ai := &countingAI{cands: model.Candidates{
		model.FieldUnitPriceEURPerKWh: {Field: model.FieldUnitPriceEURPerKWh, Value: 0.30, Confidence: 0.99, Source: model.SourceAI},
		model.FieldSupplierName:       {Field: model.FieldSupplierName, Value: "Edison", Confidence: 0.99, Source: model.SourceAI},
	}}
	out, err := New(Deps{AI: ai}, Options{}).Extract(context.Background(), Input{Text: electricityBill})
	require.NoError(t, err)

	assert.InDelta(t, 0.22, *out.Profile.UnitPriceEURPerKWh, 1e-9)
	assert.Equal(t, "Enel Energia", *out.Profile.SupplierName)
}

func TestExtract_AIFillsGaps(t *testing.T) {
	t.Parallel()

	ai := &countingAI{cands: model.Candidates{
		model.FieldTotalAnnualCostEUR: {Field: model.FieldTotalAnnualCostEUR, Value: 640.0, Confidence: 0.8, Source: model.SourceAI},
	}}
	text := "Bolletta luce\nPOD IT001E12345678\nConsumo annuo 2.700 kWh"
	out, err := New(Deps{AI: ai}, Options{}).Extract(context.Background(), Input{Text: text})
	require.NoError(t, err)

	require.NotNil(t, out.Profile.TotalAnnualCostEUR)
	assert.InDelta(t, 640, *out.Profile.TotalAnnualCostEUR, 1e-9)
	assert.InDelta(t, 0.8, out.Profile.FieldConfidence[model.FieldTotalAnnualCostEUR], 1e-9)
}

func TestExtract_SuppliedAIResponse(t *testing.T) {
	t.Parallel()

	ai := &countingAI{}
	raw := `{"supplier_name":"Edison","bill_kind":"gas","annual_consumption_smc":1100,"total_annual_cost_eur":1250.4,"confidence":{"total_annual_cost_eur":0.9}}`
	out, err := New(Deps{AI: ai}, Options{}).Extract(context.Background(), Input{AIResponse: raw})
	require.NoError(t, err)

	assert.Zero(t, ai.calls.Load(), "vendor is not called when a response is supplied")
	assert.Equal(t, "request", out.AIProvider)
	assert.Equal(t, model.BillGas, out.Profile.Kind())
	assert.InDelta(t, 1250.4, *out.Profile.TotalAnnualCostEUR, 1e-9)
}

func TestExtract_BreakerStopsCallingFailingVendor(t *testing.T) {
	t.Parallel()

	ai := &countingAI{err: resilience.NewTransientError(errors.New("503"), http.StatusServiceUnavailable)}
	a := New(Deps{AI: ai, Breaker: resilience.NewBreaker("ai", 1, time.Minute)}, Options{})

	first, err := a.Extract(context.Background(), Input{Text: electricityBill})
	require.NoError(t, err)
	assert.NotEmpty(t, first.AIError)

	second, err := a.Extract(context.Background(), Input{Text: electricityBill})
	require.NoError(t, err)
	assert.Contains(t, second.AIError, resilience.ErrBreakerOpen.Error())
	assert.Equal(t, int32(1), ai.calls.Load())
	assert.Equal(t, "Enel Energia", *second.Profile.SupplierName)
}

func TestAnalyze_PersistsAndRanks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	_, err := st.UpsertOffers(ctx, offers())
	require.NoError(t, err)

	a := New(Deps{Store: st}, Options{Rank: true})
	out, err := a.Analyze(ctx, Input{Text: electricityBill})
	require.NoError(t, err)

	require.NotEmpty(t, out.Profile.ID)
	saved, err := st.GetProfile(ctx, out.Profile.ID)
	require.NoError(t, err)
	assert.InDelta(t, out.Confidence, saved.Confidence, 1e-9)

	require.Len(t, out.Ranking, 3, "only electricity offers are ranked")
	best := out.Ranking[0]
	assert.Equal(t, "b", best.Offer.OfferID, "green wins the tie at 696")
	assert.InDelta(t, 696, best.AnnualCostEUR, 1e-9)
	assert.InDelta(t, 204, best.AnnualSavingEUR, 1e-9)
	assert.False(t, out.Cached)
}

func TestRank_ReusesSnapshotUntilCatalogChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	_, err := st.UpsertOffers(ctx, offers())
	require.NoError(t, err)

	a := New(Deps{Store: st}, Options{Rank: true, CacheTTL: time.Hour})
	out, err := a.Analyze(ctx, Input{Text: electricityBill})
	require.NoError(t, err)

	again, err := a.Rank(ctx, out.Profile)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, out.Ranking, again.Offers)

	cheaper := model.EnergyOffer{OfferID: "d", ProviderName: "Octopus", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.10)}
	_, err = st.UpsertOffers(ctx, []model.EnergyOffer{cheaper})
	require.NoError(t, err)

	fresh, err := a.Rank(ctx, out.Profile)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, "d", fresh.Offers[0].Offer.OfferID)
}

func TestRank_NeedsStore(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{}).Rank(context.Background(), model.BillProfile{})
	assert.Error(t, err)
}

func TestRankOffers_Policies(t *testing.T) {
	t.Parallel()

	noConsumption := model.BillProfile{
		BillKind:           model.Kind(model.BillElectricity),
		TotalAnnualCostEUR: model.Float(900),
	}
	combined := model.BillProfile{
		BillKind:             model.Kind(model.BillCombined),
		AnnualConsumptionKWh: model.Float(2700),
		AnnualConsumptionSmc: model.Float(1000),
		TotalAnnualCostEUR:   model.Float(2000),
	}

	tests := []struct {
		name      string
		opts      Options
		profile   model.BillProfile
		wantLen   int
		wantSplit int
	}{
		{name: "missing consumption fails closed", profile: noConsumption, wantLen: 0},
		{name: "default consumption opt in", opts: Options{DefaultKWh: 2700}, profile: noConsumption, wantLen: 3},
		{name: "combined without split", profile: combined, wantLen: 4},
		{name: "combined with split", opts: Options{SplitCombined: true, ElectricityShare: 0.6}, profile: combined, wantLen: 4, wantSplit: 2},
		{name: "split ignores single commodity", opts: Options{SplitCombined: true}, profile: noConsumption, wantLen: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := New(Deps{}, tt.opts).RankOffers(context.Background(), tt.profile, offers())
			require.NoError(t, err)
			assert.Len(t, res.Offers, tt.wantLen)
			assert.Len(t, res.Split, tt.wantSplit)
		})
	}
}

func TestRankOffers_SplitSavings(t *testing.T) {
	t.Parallel()

	combined := model.BillProfile{
		BillKind:             model.Kind(model.BillCombined),
		AnnualConsumptionKWh: model.Float(2700),
		AnnualConsumptionSmc: model.Float(1000),
		TotalAnnualCostEUR:   model.Float(2000),
	}
	res, err := New(Deps{}, Options{SplitCombined: true, ElectricityShare: 0.6}).RankOffers(context.Background(), combined, offers())
	require.NoError(t, err)

	require.Len(t, res.Split, 2)
	assert.InDelta(t, 1200, *res.Split[0].TotalAnnualCostEUR, 1e-9)
	assert.InDelta(t, 800, *res.Split[1].TotalAnnualCostEUR, 1e-9)
	assert.InDelta(t, 1200-696, res.Offers[0].AnnualSavingEUR, 1e-9)

	gas := res.Offers[len(res.Offers)-1]
	assert.Equal(t, model.CommodityGas, gas.Offer.Commodity)
	assert.InDelta(t, 800-1020, gas.AnnualSavingEUR, 1e-9)
}

func TestRankOffers_MalformedCatalog(t *testing.T) {
	t.Parallel()

	bad := append(offers(), model.EnergyOffer{OfferID: "x", ProviderName: "X"})
	_, err := New(Deps{}, Options{}).RankOffers(context.Background(), model.BillProfile{}, bad)
	assert.ErrorIs(t, err, model.ErrMissingCommodity)

	priced := model.EnergyOffer{OfferID: "y", ProviderName: "Y", Commodity: model.CommodityGas, UnitPriceEURPerKWh: model.Float(0.2)}
	_, err = New(Deps{}, Options{}).RankOffers(context.Background(), model.BillProfile{}, append(offers(), priced))
	assert.ErrorIs(t, err, model.ErrInvalidOffer)
}

func TestRankOffers_ChecksLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	list := []model.EnergyOffer{
		{OfferID: "live", ProviderName: "Sorgenia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.1), RedirectURL: model.String(srv.URL + "/ok")},
		{OfferID: "dead", ProviderName: "Enel Energia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.2), RedirectURL: model.String(srv.URL + "/gone")},
	}
	profile := model.BillProfile{
		BillKind:             model.Kind(model.BillElectricity),
		AnnualConsumptionKWh: model.Float(2700),
		TotalAnnualCostEUR:   model.Float(900),
	}

	links := provider.NewLinkChecker(provider.NewResolver(nil), srv.Client())
	res, err := New(Deps{Links: links}, Options{}).RankOffers(context.Background(), profile, list)
	require.NoError(t, err)
	require.Len(t, res.Offers, 2)

	assert.Equal(t, srv.URL+"/ok", *res.Offers[0].Offer.RedirectURL)
	assert.Equal(t, "https://www.enel.it", *res.Offers[1].Offer.RedirectURL)
}

func TestAnalyzeFile_And_Batch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	good := filepath.Join(dir, "bill.txt")
	require.NoError(t, os.WriteFile(good, []byte(electricityBill), 0o644))
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" "), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	a := New(Deps{OCR: ocr.NewRouter("test", nil), Store: newStore(t)}, Options{Concurrency: 2})

	out, err := a.AnalyzeFile(ctx, good)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Profile.ID)

	results := a.AnalyzeBatch(ctx, []string{good, missing, empty})
	require.Len(t, results, 3)
	assert.Equal(t, good, results[0].Path)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Analysis)
	assert.Equal(t, "Enel Energia", *results[0].Analysis.Profile.SupplierName)
	assert.Equal(t, missing, results[1].Path)
	assert.NotEmpty(t, results[1].Error)
	assert.Contains(t, results[2].Error, ErrEmptyInput.Error())
}

func TestReadDocument_NoOCR(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{}).ReadDocument(context.Background(), "bill.pdf")
	assert.Error(t, err)
}

var _ aiextract.Extractor = (*countingAI)(nil)
