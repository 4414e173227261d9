package catalog

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/bill-advisor/internal/extract"
	"github.com/sells-group/bill-advisor/internal/model"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Column headers recognised in the first row. Matching ignores case and
// surrounding spaces; unknown columns are ignored.
const (
	colOfferID      = "offer_id"
	colProvider     = "provider_name"
	colPlan         = "plan_name"
	colCommodity    = "commodity"
	colPricingModel = "pricing_model"
	colPriceKWh     = "unit_price_eur_per_kwh"
	colPriceSmc     = "unit_price_eur_per_smc"
	colFixedFee     = "fixed_fee_eur_per_month"
	colGreen        = "is_green"
	colRedirect     = "redirect_url"
	colTerms        = "terms_url"
)

var requiredColumns = []string{colOfferID, colProvider, colCommodity}

// ReadXLSX reads offers from a spreadsheet whose first row holds column
// headers. Blank rows are skipped. Every offer is validated.
func ReadXLSX(path string, opts XLSXOptions) ([]model.EnergyOffer, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("catalog: xlsx sheet is empty")
	}

	cols := headerIndex(rowToStrings(sheet.Rows[0]))
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, eris.Errorf("catalog: xlsx missing column %q", c)
		}
	}

	var offers []model.EnergyOffer
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		o, err := offerFromRow(cols, cells)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: xlsx row %d", i+2)
		}
		offers = append(offers, o)
	}

	if err := Validate(offers); err != nil {
		return nil, err
	}
	return offers, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("catalog: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("catalog: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func offerFromRow(cols map[string]int, cells []string) (model.EnergyOffer, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	o := model.EnergyOffer{
		OfferID:      get(colOfferID),
		ProviderName: get(colProvider),
		PlanName:     get(colPlan),
		Commodity:    model.Commodity(strings.ToLower(get(colCommodity))),
		PricingModel: model.PricingModel(strings.ToLower(get(colPricingModel))),
		IsGreen:      truthy(get(colGreen)),
	}

	var err error
	if o.UnitPriceEURPerKWh, err = optionalNumber(get(colPriceKWh)); err != nil {
		return o, eris.Wrap(err, colPriceKWh)
	}
	if o.UnitPriceEURPerSmc, err = optionalNumber(get(colPriceSmc)); err != nil {
		return o, eris.Wrap(err, colPriceSmc)
	}
	fee, err := optionalNumber(get(colFixedFee))
	if err != nil {
		return o, eris.Wrap(err, colFixedFee)
	}
	if fee != nil {
		o.FixedFeeEURPerMonth = *fee
	}
	if s := get(colRedirect); s != "" {
		o.RedirectURL = model.String(s)
	}
	if s := get(colTerms); s != "" {
		o.TermsURL = model.String(s)
	}
	return o, nil
}

func optionalNumber(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := extract.ParseNumber(s, false)
	if err != nil {
		return nil, err
	}
	return model.Float(v), nil
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "si", "sì", "x":
		return true
	}
	return false
}
