package model

import "time"

// UnknownProvider is the supplier sentinel for "no alias matched".
const UnknownProvider = "unknown"

// BillKind is the commodity a bill covers.
type BillKind string

// Bill kinds.
const (
	BillElectricity BillKind = "electricity"
	BillGas         BillKind = "gas"
	BillCombined    BillKind = "combined"
)

// Valid reports whether k is one of the known kinds.
func (k BillKind) Valid() bool {
	switch k {
	case BillElectricity, BillGas, BillCombined:
		return true
	}
	return false
}

// CandidateSource tags which extractor produced a candidate.
type CandidateSource string

// Candidate sources.
const (
	SourceTemplate CandidateSource = "template"
	SourceAI       CandidateSource = "ai"
)

// BillFieldCandidate is one extracted value. Value holds a float64 for
// numeric fields and a string otherwise; nil means null.
type BillFieldCandidate struct {
	Field      FieldName       `json:"field_name"`
	Value      any             `json:"value"`
	Confidence float64         `json:"confidence"`
	Source     CandidateSource `json:"source"`
}

// Candidates is the output of one extraction call, keyed by field.
type Candidates map[FieldName]BillFieldCandidate

// Number returns the candidate's numeric value, if any.
func (c BillFieldCandidate) Number() (float64, bool) {
	f, ok := c.Value.(float64)
	return f, ok
}

// Text returns the candidate's string value, if any.
func (c BillFieldCandidate) Text() (string, bool) {
	s, ok := c.Value.(string)
	return s, ok
}

// BillProfile is the reconciled, authoritative bill record.
type BillProfile struct {
	ID                    string                `json:"id,omitempty"`
	SupplierName          *string               `json:"supplier_name"`
	BillKind              *BillKind             `json:"bill_kind"`
	PointOfDeliveryCode   *string               `json:"point_of_delivery_code"`
	PointOfRedeliveryCode *string               `json:"point_of_redelivery_code"`
	AnnualConsumptionKWh  *float64              `json:"annual_consumption_kwh"`
	AnnualConsumptionSmc  *float64              `json:"annual_consumption_smc"`
	UnitPriceEURPerKWh    *float64              `json:"unit_price_eur_per_kwh"`
	UnitPriceEURPerSmc    *float64              `json:"unit_price_eur_per_smc"`
	FixedFeeEURPerMonth   *float64              `json:"fixed_fee_eur_per_month"`
	TotalAnnualCostEUR    *float64              `json:"total_annual_cost_eur"`
	FieldConfidence       map[FieldName]float64 `json:"field_confidence"`
	CreatedAt             time.Time             `json:"created_at,omitempty"`
}

// Get returns the profile's value for a field as a candidate-style value
// (float64, string or nil).
func (p *BillProfile) Get(name FieldName) any {
	switch name {
	case FieldSupplierName:
		return derefString(p.SupplierName)
	case FieldBillKind:
		if p.BillKind == nil {
			return nil
		}
		return string(*p.BillKind)
	case FieldPointOfDelivery:
		return derefString(p.PointOfDeliveryCode)
	case FieldPointOfRedelivery:
		return derefString(p.PointOfRedeliveryCode)
	case FieldAnnualConsumptionKWh:
		return derefFloat(p.AnnualConsumptionKWh)
	case FieldAnnualConsumptionSmc:
		return derefFloat(p.AnnualConsumptionSmc)
	case FieldUnitPriceEURPerKWh:
		return derefFloat(p.UnitPriceEURPerKWh)
	case FieldUnitPriceEURPerSmc:
		return derefFloat(p.UnitPriceEURPerSmc)
	case FieldFixedFeeEURPerMonth:
		return derefFloat(p.FixedFeeEURPerMonth)
	case FieldTotalAnnualCostEUR:
		return derefFloat(p.TotalAnnualCostEUR)
	}
	return nil
}

// Set assigns a candidate-style value to a field. Values of the wrong
// type for the field are ignored and the field is left null.
func (p *BillProfile) Set(name FieldName, v any) {
	s, isStr := v.(string)
	f, isNum := v.(float64)
	switch name {
	case FieldSupplierName:
		p.SupplierName = strPtr(s, isStr)
	case FieldBillKind:
		if isStr && BillKind(s).Valid() {
			k := BillKind(s)
			p.BillKind = &k
		} else {
			p.BillKind = nil
		}
	case FieldPointOfDelivery:
		p.PointOfDeliveryCode = strPtr(s, isStr)
	case FieldPointOfRedelivery:
		p.PointOfRedeliveryCode = strPtr(s, isStr)
	case FieldAnnualConsumptionKWh:
		p.AnnualConsumptionKWh = floatPtr(f, isNum)
	case FieldAnnualConsumptionSmc:
		p.AnnualConsumptionSmc = floatPtr(f, isNum)
	case FieldUnitPriceEURPerKWh:
		p.UnitPriceEURPerKWh = floatPtr(f, isNum)
	case FieldUnitPriceEURPerSmc:
		p.UnitPriceEURPerSmc = floatPtr(f, isNum)
	case FieldFixedFeeEURPerMonth:
		p.FixedFeeEURPerMonth = floatPtr(f, isNum)
	case FieldTotalAnnualCostEUR:
		p.TotalAnnualCostEUR = floatPtr(f, isNum)
	}
}

// Kind returns the bill kind or "" when null.
func (p *BillProfile) Kind() BillKind {
	if p.BillKind == nil {
		return ""
	}
	return *p.BillKind
}

// Clone returns a deep copy of the profile.
func (p BillProfile) Clone() BillProfile {
	out := p
	for _, s := range schema {
		out.Set(s.Name, p.Get(s.Name))
	}
	out.FieldConfidence = make(map[FieldName]float64, len(p.FieldConfidence))
	for k, v := range p.FieldConfidence {
		out.FieldConfidence[k] = v
	}
	return out
}

// Float returns a pointer to v. Handy for building profiles in code.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Kind returns a pointer to k.
func Kind(k BillKind) *BillKind { return &k }

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func strPtr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

func floatPtr(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}
