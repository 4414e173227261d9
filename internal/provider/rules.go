// Package provider maps free-text supplier names to canonical identities
// and homepage URLs.
package provider

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule maps a lowercase keyword to a canonical supplier.
//
// Boundary rules only match on word boundaries when scanning long text
// (bill bodies); short brand tokens like "eni" otherwise fire inside
// ordinary Italian words.
type Rule struct {
	Keyword   string `yaml:"keyword"`
	Canonical string `yaml:"canonical"`
	Homepage  string `yaml:"homepage"`
	Boundary  bool   `yaml:"boundary"`
}

// DefaultRules is ordered: longer and more specific keywords come before
// any shorter keyword that is a substring of them.
var DefaultRules = []Rule{
	{Keyword: "servizio elettrico nazionale", Canonical: "Servizio Elettrico Nazionale", Homepage: "https://www.servizioelettriconazionale.it"},
	{Keyword: "enel energia", Canonical: "Enel Energia", Homepage: "https://www.enel.it"},
	{Keyword: "eni plenitude", Canonical: "Eni Plenitude", Homepage: "https://eniplenitude.com"},
	{Keyword: "plenitude", Canonical: "Eni Plenitude", Homepage: "https://eniplenitude.com"},
	{Keyword: "eni gas e luce", Canonical: "Eni Plenitude", Homepage: "https://eniplenitude.com"},
	{Keyword: "edison energia", Canonical: "Edison Energia", Homepage: "https://www.edisonenergia.it"},
	{Keyword: "edison", Canonical: "Edison Energia", Homepage: "https://www.edisonenergia.it"},
	{Keyword: "a2a energia", Canonical: "A2A Energia", Homepage: "https://www.a2aenergia.eu"},
	{Keyword: "hera comm", Canonical: "Hera Comm", Homepage: "https://www.heracomm.it"},
	{Keyword: "iren mercato", Canonical: "Iren", Homepage: "https://www.iren.it"},
	{Keyword: "acea energia", Canonical: "Acea Energia", Homepage: "https://www.acea.it"},
	{Keyword: "sorgenia", Canonical: "Sorgenia", Homepage: "https://www.sorgenia.it"},
	{Keyword: "engie", Canonical: "Engie", Homepage: "https://casa.engie.it"},
	{Keyword: "illumia", Canonical: "Illumia", Homepage: "https://www.illumia.it"},
	{Keyword: "octopus energy", Canonical: "Octopus Energy", Homepage: "https://octopusenergy.it"},
	{Keyword: "e.on", Canonical: "E.ON Energia", Homepage: "https://www.eon-energia.com"},
	{Keyword: "dolomiti energia", Canonical: "Dolomiti Energia", Homepage: "https://www.dolomitienergia.it"},
	{Keyword: "estra", Canonical: "Estra", Homepage: "https://www.estra.it", Boundary: true},
	{Keyword: "pulsee", Canonical: "Pulsee", Homepage: "https://www.pulsee.it"},
	{Keyword: "optima italia", Canonical: "Optima Italia", Homepage: "https://www.optimaitalia.com"},
	{Keyword: "agsm aim", Canonical: "AGSM AIM Energia", Homepage: "https://www.agsmaim.it"},
	{Keyword: "enel", Canonical: "Enel Energia", Homepage: "https://www.enel.it", Boundary: true},
	{Keyword: "a2a", Canonical: "A2A Energia", Homepage: "https://www.a2aenergia.eu", Boundary: true},
	{Keyword: "hera", Canonical: "Hera Comm", Homepage: "https://www.heracomm.it", Boundary: true},
	{Keyword: "iren", Canonical: "Iren", Homepage: "https://www.iren.it", Boundary: true},
	{Keyword: "acea", Canonical: "Acea Energia", Homepage: "https://www.acea.it", Boundary: true},
	{Keyword: "eni", Canonical: "Eni Plenitude", Homepage: "https://eniplenitude.com", Boundary: true},
}

// ValidateRules reports the first rule that can never match because an
// earlier rule's keyword is a substring of it.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if strings.TrimSpace(r.Keyword) == "" || r.Canonical == "" {
			return eris.Errorf("provider: rule %d is missing keyword or canonical name", i)
		}
		for j := 0; j < i; j++ {
			earlier := rules[j]
			if !strings.Contains(r.Keyword, earlier.Keyword) {
				continue
			}
			// A boundary rule only shadows when the later keyword also
			// contains it as a whole word.
			if earlier.Boundary && !containsWord(r.Keyword, earlier.Keyword) {
				continue
			}
			return eris.Errorf("provider: rule %q is shadowed by earlier rule %q", r.Keyword, earlier.Keyword)
		}
	}
	return nil
}

// LoadRules reads a YAML rule file with a top-level "providers" list.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read rules %s", path)
	}

	var wrapper struct {
		Providers []Rule `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "provider: parse rules")
	}

	for i := range wrapper.Providers {
		wrapper.Providers[i].Keyword = Normalize(wrapper.Providers[i].Keyword)
	}
	if err := ValidateRules(wrapper.Providers); err != nil {
		return nil, err
	}
	return wrapper.Providers, nil
}
