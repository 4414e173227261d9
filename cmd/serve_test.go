package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/pipeline"
	"github.com/sells-group/bill-advisor/internal/provider"
	"github.com/sells-group/bill-advisor/internal/store"
)

const testBill = `ENEL ENERGIA S.p.A. - Bolletta luce
Codice POD: IT001E12345678
Consumo annuo: 2.700 kWh
Prezzo energia: 0,22 €/kWh
Quota fissa: 8,50 €/mese
Spesa annua stimata: 900,00 €
`

func testOffers() []model.EnergyOffer {
	return []model.EnergyOffer{
		{OfferID: "a", ProviderName: "A2A Energia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.22), FixedFeeEURPerMonth: 8.5},
		{OfferID: "b", ProviderName: "Sorgenia", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.22), FixedFeeEURPerMonth: 8.5, IsGreen: true},
		{OfferID: "g", ProviderName: "Eni Plenitude", Commodity: model.CommodityGas, UnitPriceEURPerSmc: model.Float(0.9), FixedFeeEURPerMonth: 10},
	}
}

// testEnv returns an environment with a migrated SQLite store holding the
// test catalog, or no store when withStore is false.
func testEnv(t *testing.T, withStore bool) *appEnv {
	t.Helper()
	resolver := provider.NewResolver(nil)
	env := &appEnv{Resolver: resolver, Template: extract.New(resolver)}
	deps := pipeline.Deps{Template: env.Template}
	if withStore {
		st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		require.NoError(t, st.Migrate(context.Background()))
		_, err = st.UpsertOffers(context.Background(), testOffers())
		require.NoError(t, err)
		env.Store = st
		deps.Store = st
	}
	t.Cleanup(env.Close)
	env.Analyzer = pipeline.New(deps, pipeline.Options{Rank: withStore})
	return env
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	rr := do(t, newRouter(testEnv(t, false), nil, 0), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["store"])
}

func TestRouter_Extract(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), nil, 0)

	rr := do(t, h, http.MethodPost, "/v1/bills/extract", pipeline.Input{Text: testBill})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out pipeline.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotNil(t, out.Profile.SupplierName)
	assert.Equal(t, "Enel Energia", *out.Profile.SupplierName)
	assert.InDelta(t, 900, *out.Profile.TotalAnnualCostEUR, 1e-9)

	rr = do(t, h, http.MethodPost, "/v1/bills/extract", pipeline.Input{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "text is required")
}

func TestRouter_BadBody(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), nil, 16)

	req := httptest.NewRequest(http.MethodPost, "/v1/bills/extract", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/bills/extract", pipeline.Input{Text: testBill})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "body over the limit is rejected")
}

func TestRouter_AnalyzeThenFetchProfile(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, true), nil, 0)

	rr := do(t, h, http.MethodPost, "/v1/bills/analyze", pipeline.Input{Text: testBill})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out pipeline.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.Profile.ID)
	require.Len(t, out.Ranking, 2)
	assert.Equal(t, "b", out.Ranking[0].Offer.OfferID)
	assert.InDelta(t, 204, out.Ranking[0].AnnualSavingEUR, 1e-9)

	rr = do(t, h, http.MethodGet, "/v1/profiles/"+out.Profile.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec store.ProfileRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, out.Profile.ID, rec.Profile.ID)

	rr = do(t, h, http.MethodGet, "/v1/profiles?kind=electricity&limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []store.ProfileRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)

	rr = do(t, h, http.MethodGet, "/v1/profiles?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/profiles/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{ProfileID: out.Profile.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res pipeline.RankResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Cached)
}

func TestRouter_RankWithOffers(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), nil, 0)

	profile := model.BillProfile{
		BillKind:             model.Kind(model.BillElectricity),
		AnnualConsumptionKWh: model.Float(2700),
		TotalAnnualCostEUR:   model.Float(900),
	}
	rr := do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{Profile: &profile, Offers: testOffers()})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res pipeline.RankResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Offers, 2)
	assert.InDelta(t, 696, res.Offers[0].AnnualCostEUR, 1e-9)

	bad := append(testOffers(), model.EnergyOffer{OfferID: "x", ProviderName: "X"})
	rr = do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{Profile: &profile, Offers: bad})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	invalid := []model.EnergyOffer{
		{OfferID: "neg", ProviderName: "Edison", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(-0.1)},
		{OfferID: "both", ProviderName: "Edison", Commodity: model.CommodityElectricity, UnitPriceEURPerKWh: model.Float(0.1), UnitPriceEURPerSmc: model.Float(0.9)},
	}
	for _, o := range invalid {
		rr = do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{Profile: &profile, Offers: []model.EnergyOffer{o}})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, o.OfferID)
	}

	rr = do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/offers/rank", rankRequest{Profile: &profile})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "stored catalog needs a store")
}

func TestRouter_Resolve(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), nil, 0)

	rr := do(t, h, http.MethodGet, "/v1/providers/resolve?name=ENEL%20ENERGIA%20SPA", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res provider.Resolution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "Enel Energia", res.CanonicalName)
	assert.Equal(t, "https://www.enel.it", res.RedirectURL)
	assert.True(t, res.Matched)

	rr = do(t, h, http.MethodGet, "/v1/providers/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_StoreEndpointsWithoutStore(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), nil, 0)

	for _, path := range []string{"/v1/offers", "/v1/profiles", "/v1/profiles/abc"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
	rr := do(t, h, http.MethodPost, "/v1/bills/analyze", pipeline.Input{Text: testBill})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_ListOffers(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, true), nil, 0)

	rr := do(t, h, http.MethodGet, "/v1/offers?commodity=gas", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var offers []model.EnergyOffer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &offers))
	require.Len(t, offers, 1)
	assert.Equal(t, "g", offers[0].OfferID)
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()
	h := newRouter(testEnv(t, false), []string{"https://app.example.it"}, 0)

	req := httptest.NewRequest(http.MethodOptions, "/v1/bills/extract", nil)
	req.Header.Set("Origin", "https://app.example.it")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.it", rr.Header().Get("Access-Control-Allow-Origin"))
}
