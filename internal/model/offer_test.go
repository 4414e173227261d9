package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferUnitPrice(t *testing.T) {
	t.Parallel()

	elec := EnergyOffer{Commodity: CommodityElectricity, UnitPriceEURPerKWh: Float(0.22)}
	p, ok := elec.UnitPrice()
	require.True(t, ok)
	assert.InDelta(t, 0.22, p, 1e-9)

	gasNoPrice := EnergyOffer{Commodity: CommodityGas, UnitPriceEURPerKWh: Float(0.22)}
	_, ok = gasNoPrice.UnitPrice()
	assert.False(t, ok)
}

func TestValidateOffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		offer     EnergyOffer
		wantErr   bool
		commodity bool
	}{
		{
			name:  "valid electricity",
			offer: EnergyOffer{OfferID: "o1", ProviderName: "Enel Energia", Commodity: CommodityElectricity, PricingModel: PricingFixed, UnitPriceEURPerKWh: Float(0.22), FixedFeeEURPerMonth: 8.5},
		},
		{
			name:  "valid gas without price",
			offer: EnergyOffer{OfferID: "o2", ProviderName: "Eni Plenitude", Commodity: CommodityGas},
		},
		{
			name:      "missing commodity",
			offer:     EnergyOffer{OfferID: "o3", ProviderName: "Edison"},
			wantErr:   true,
			commodity: true,
		},
		{
			name:    "cross-commodity price",
			offer:   EnergyOffer{OfferID: "o4", ProviderName: "Edison", Commodity: CommodityGas, UnitPriceEURPerKWh: Float(0.2)},
			wantErr: true,
		},
		{
			name:    "electricity offer with a Smc price",
			offer:   EnergyOffer{OfferID: "o8", ProviderName: "Edison", Commodity: CommodityElectricity, UnitPriceEURPerKWh: Float(0.2), UnitPriceEURPerSmc: Float(0.9)},
			wantErr: true,
		},
		{
			name:    "negative unit price",
			offer:   EnergyOffer{OfferID: "o9", ProviderName: "Edison", Commodity: CommodityElectricity, UnitPriceEURPerKWh: Float(-0.2)},
			wantErr: true,
		},
		{
			name:    "missing provider",
			offer:   EnergyOffer{OfferID: "o5", Commodity: CommodityGas},
			wantErr: true,
		},
		{
			name:    "negative fee",
			offer:   EnergyOffer{OfferID: "o6", ProviderName: "Iren", Commodity: CommodityGas, FixedFeeEURPerMonth: -1},
			wantErr: true,
		},
		{
			name:    "bad redirect url",
			offer:   EnergyOffer{OfferID: "o7", ProviderName: "Iren", Commodity: CommodityGas, RedirectURL: String("not a url")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOffer(tt.offer)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.commodity, errors.Is(err, ErrMissingCommodity))
			assert.Equal(t, !tt.commodity, errors.Is(err, ErrInvalidOffer))
		})
	}
}
