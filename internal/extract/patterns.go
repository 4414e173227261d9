package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/bill-advisor/internal/model"
)

// numberRe matches a digit run with optional '.'/',' separators.
const numberRe = `(\d[\d.,]*\d|\d)`

// keywordWindow is how far (in runes) a value may sit after its anchor.
const keywordWindow = 40

const euro = `(?:€|euro\b|eur\b)`

// numericRule anchors a numeric field on keywords and a trailing unit.
type numericRule struct {
	field     model.FieldName
	keywords  []string
	thousands bool // quantities: a lone ".ddd" is a thousands separator
	re        *regexp.Regexp
	prefixRe  *regexp.Regexp // optional "€ 900,00" form
}

func newNumericRule(field model.FieldName, keywords []string, unit string, thousands, currencyPrefix bool) numericRule {
	anchor := `(?is)(?:` + strings.Join(keywords, "|") + `)(.{0,` + strconv.Itoa(keywordWindow) + `}?)`
	r := numericRule{
		field:     field,
		keywords:  keywords,
		thousands: thousands,
		re:        regexp.MustCompile(anchor + numberRe + `\s*` + unit),
	}
	if currencyPrefix {
		r.prefixRe = regexp.MustCompile(anchor + euro + `\s*` + numberRe)
	}
	return r
}

// numericRules are listed in extraction priority order.
var numericRules = []numericRule{
	newNumericRule(model.FieldUnitPriceEURPerKWh, []string{"prezzo", "energia"}, euro+`\s*/\s*kwh`, false, false),
	newNumericRule(model.FieldUnitPriceEURPerSmc, []string{"gas"}, euro+`\s*/\s*s(?:mc|m3)`, false, false),
	newNumericRule(model.FieldAnnualConsumptionKWh, []string{"consumo", "annuo", "totale"}, `kwh\b`, true, false),
	newNumericRule(model.FieldAnnualConsumptionSmc, []string{"consumo", "annuo", "totale"}, `s(?:mc|m3)\b`, true, false),
	newNumericRule(model.FieldFixedFeeEURPerMonth, []string{"quota", "fissa", "canone"}, euro+`\s*/\s*mese`, false, false),
	// The trailing class keeps "€/kWh" and "€/mese" out of totals.
	newNumericRule(model.FieldTotalAnnualCostEUR, []string{"totale", "spesa", "importo"}, euro+`(?:\s*(?:[^\s/]|$))`, true, true),
}

var (
	podRe = regexp.MustCompile(`(?i)\bIT[0-9A-Z]{10,25}\b`)
	pdrRe = regexp.MustCompile(`\b\d{14}\b`)
)

// identifierRule locates a meter identifier.
type identifierRule struct {
	field  model.FieldName
	re     *regexp.Regexp
	prefer string   // label that marks the right occurrence, e.g. "pod"
	reject []string // labels that mark a lookalike, e.g. "iban"
}

var identifierRules = []identifierRule{
	{field: model.FieldPointOfDelivery, re: podRe, prefer: "pod", reject: []string{"iban"}},
	{field: model.FieldPointOfRedelivery, re: pdrRe, prefer: "pdr", reject: []string{"iban"}},
}
