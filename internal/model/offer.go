package model

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// ErrMissingCommodity is returned for offer records that carry no usable
// commodity discriminator. It marks a malformed catalog, not a data gap.
var ErrMissingCommodity = errors.New("offer has no valid commodity")

// ErrInvalidOffer is returned for offer records whose fields break the
// offer shape: a missing provider, a non-positive price, a price for the
// other commodity.
var ErrInvalidOffer = errors.New("invalid offer")

// Commodity is what an offer supplies.
type Commodity string

// Commodities.
const (
	CommodityElectricity Commodity = "electricity"
	CommodityGas         Commodity = "gas"
)

// PricingModel says how an offer's unit price moves over time.
type PricingModel string

// Pricing models.
const (
	PricingFixed    PricingModel = "fixed"
	PricingVariable PricingModel = "variable"
	PricingIndexed  PricingModel = "indexed"
)

// EnergyOffer is one catalog entry.
type EnergyOffer struct {
	OfferID             string       `json:"offer_id" validate:"required"`
	ProviderName        string       `json:"provider_name" validate:"required"`
	PlanName            string       `json:"plan_name"`
	Commodity           Commodity    `json:"commodity" validate:"required,oneof=electricity gas"`
	PricingModel        PricingModel `json:"pricing_model" validate:"omitempty,oneof=fixed variable indexed"`
	UnitPriceEURPerKWh  *float64     `json:"unit_price_eur_per_kwh,omitempty" validate:"omitempty,gt=0"`
	UnitPriceEURPerSmc  *float64     `json:"unit_price_eur_per_smc,omitempty" validate:"omitempty,gt=0"`
	FixedFeeEURPerMonth float64      `json:"fixed_fee_eur_per_month" validate:"gte=0"`
	IsGreen             bool         `json:"is_green"`
	RedirectURL         *string      `json:"redirect_url,omitempty" validate:"omitempty,url"`
	TermsURL            *string      `json:"terms_url,omitempty" validate:"omitempty,url"`
}

// UnitPrice returns the commodity-appropriate unit price.
func (o EnergyOffer) UnitPrice() (float64, bool) {
	switch o.Commodity {
	case CommodityElectricity:
		if o.UnitPriceEURPerKWh != nil {
			return *o.UnitPriceEURPerKWh, true
		}
	case CommodityGas:
		if o.UnitPriceEURPerSmc != nil {
			return *o.UnitPriceEURPerSmc, true
		}
	}
	return 0, false
}

// RankedOffer is one row of a ranking result.
type RankedOffer struct {
	Offer           EnergyOffer `json:"offer"`
	AnnualCostEUR   float64     `json:"annual_cost_eur"`
	AnnualSavingEUR float64     `json:"annual_saving_eur"`
	Rank            int         `json:"rank"`
}

var offerValidate = validator.New(validator.WithRequiredStructEnabled())

// ValidateOffer checks an offer's structural shape. A missing or unknown
// commodity yields an error wrapping ErrMissingCommodity. A missing unit
// price is not a structural error; ranking excludes such offers instead.
func ValidateOffer(o EnergyOffer) error {
	if o.Commodity != CommodityElectricity && o.Commodity != CommodityGas {
		return eris.Wrapf(ErrMissingCommodity, "model: offer %q commodity %q", o.OfferID, o.Commodity)
	}
	if err := offerValidate.Struct(o); err != nil {
		return eris.Wrapf(ErrInvalidOffer, "model: offer %q: %v", o.OfferID, err)
	}
	if o.Commodity == CommodityElectricity && o.UnitPriceEURPerSmc != nil {
		return eris.Wrapf(ErrInvalidOffer, "model: offer %q is electricity but carries a Smc price", o.OfferID)
	}
	if o.Commodity == CommodityGas && o.UnitPriceEURPerKWh != nil {
		return eris.Wrapf(ErrInvalidOffer, "model: offer %q is gas but carries a kWh price", o.OfferID)
	}
	return nil
}

// RankingSnapshot is a cached ranking for one profile against one catalog
// state. CatalogHash identifies the offers it was computed from.
type RankingSnapshot struct {
	ID          string        `json:"id"`
	ProfileID   string        `json:"profile_id"`
	CatalogHash string        `json:"catalog_hash"`
	Offers      []RankedOffer `json:"offers"`
	CreatedAt   time.Time     `json:"created_at"`
}
