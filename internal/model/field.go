package model

import (
	"fmt"
	"regexp"
)

// FieldName identifies one field of the fixed bill schema.
type FieldName string

// Fixed bill schema.
const (
	FieldSupplierName         FieldName = "supplier_name"
	FieldBillKind             FieldName = "bill_kind"
	FieldPointOfDelivery      FieldName = "point_of_delivery_code"
	FieldPointOfRedelivery    FieldName = "point_of_redelivery_code"
	FieldAnnualConsumptionKWh FieldName = "annual_consumption_kwh"
	FieldAnnualConsumptionSmc FieldName = "annual_consumption_smc"
	FieldUnitPriceEURPerKWh   FieldName = "unit_price_eur_per_kwh"
	FieldUnitPriceEURPerSmc   FieldName = "unit_price_eur_per_smc"
	FieldFixedFeeEURPerMonth  FieldName = "fixed_fee_eur_per_month"
	FieldTotalAnnualCostEUR   FieldName = "total_annual_cost_eur"
)

// FieldKind describes the value type carried by a field.
type FieldKind string

// Field kinds.
const (
	KindText       FieldKind = "text"
	KindEnum       FieldKind = "enum"
	KindIdentifier FieldKind = "identifier"
	KindNumber     FieldKind = "number"
)

// FieldSpec declares the type and validity bounds of one schema field.
type FieldSpec struct {
	Name    FieldName
	Kind    FieldKind
	Min     float64        // inclusive, numeric fields only
	Max     float64        // inclusive, numeric fields only
	Unit    string         // display unit, numeric fields only
	Pattern *regexp.Regexp // identifier fields only
}

var (
	podPattern = regexp.MustCompile(`^IT[0-9A-Z]{10,25}$`)
	pdrPattern = regexp.MustCompile(`^\d{14}$`)
)

// schema is ordered; Fields() returns it in this order.
var schema = []FieldSpec{
	{Name: FieldSupplierName, Kind: KindText},
	{Name: FieldBillKind, Kind: KindEnum},
	{Name: FieldPointOfDelivery, Kind: KindIdentifier, Pattern: podPattern},
	{Name: FieldPointOfRedelivery, Kind: KindIdentifier, Pattern: pdrPattern},
	{Name: FieldAnnualConsumptionKWh, Kind: KindNumber, Min: 200, Max: 10000, Unit: "kWh"},
	{Name: FieldAnnualConsumptionSmc, Kind: KindNumber, Min: 50, Max: 5000, Unit: "Smc"},
	{Name: FieldUnitPriceEURPerKWh, Kind: KindNumber, Min: 0.05, Max: 2.0, Unit: "€/kWh"},
	{Name: FieldUnitPriceEURPerSmc, Kind: KindNumber, Min: 0.1, Max: 5.0, Unit: "€/Smc"},
	{Name: FieldFixedFeeEURPerMonth, Kind: KindNumber, Min: 0, Max: 100, Unit: "€/mese"},
	{Name: FieldTotalAnnualCostEUR, Kind: KindNumber, Min: 50, Max: 5000, Unit: "€"},
}

var specByName = func() map[FieldName]FieldSpec {
	m := make(map[FieldName]FieldSpec, len(schema))
	for _, s := range schema {
		m[s.Name] = s
	}
	return m
}()

// Fields returns the fixed schema in declaration order.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(schema))
	copy(out, schema)
	return out
}

// Spec returns the spec for a field name.
func Spec(name FieldName) (FieldSpec, bool) {
	s, ok := specByName[name]
	return s, ok
}

// InRange reports whether v lies inside the field's declared bounds.
func (s FieldSpec) InRange(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// Check validates a candidate value against the spec. It returns a
// human-readable violation, or "" when the value is acceptable.
func (s FieldSpec) Check(v any) string {
	switch s.Kind {
	case KindNumber:
		f, ok := v.(float64)
		if !ok {
			return fmt.Sprintf("%s: not a number (%v)", s.Name, v)
		}
		if !s.InRange(f) {
			return fmt.Sprintf("%s: %g outside [%g, %g]", s.Name, f, s.Min, s.Max)
		}
	case KindIdentifier:
		str, ok := v.(string)
		if !ok || !s.Pattern.MatchString(str) {
			return fmt.Sprintf("%s: malformed code %v", s.Name, v)
		}
	case KindEnum:
		str, _ := v.(string)
		if !BillKind(str).Valid() {
			return fmt.Sprintf("%s: unknown kind %v", s.Name, v)
		}
	case KindText:
		str, ok := v.(string)
		if !ok || str == "" {
			return fmt.Sprintf("%s: empty", s.Name)
		}
	}
	return ""
}
