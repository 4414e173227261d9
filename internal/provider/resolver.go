package provider

import (
	"strings"

	"go.uber.org/zap"
)

// legalSuffixes are stripped before building a fallback homepage guess.
var legalSuffixes = []string{"s.p.a.", "spa", "s.r.l.", "srl", "s.a.", "societa benefit", "sb"}

// Resolution is the outcome of resolving a supplier name.
type Resolution struct {
	CanonicalName string `json:"canonical_name"`
	RedirectURL   string `json:"redirect_url"`
	Matched       bool   `json:"matched"`
}

// Resolver resolves supplier names against an ordered rule list.
type Resolver struct {
	rules []Rule
}

// NewResolver creates a Resolver. Nil or empty rules select DefaultRules.
// Keywords are normalized so callers may pass mixed-case rules.
func NewResolver(rules []Rule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		r.Keyword = Normalize(r.Keyword)
		out[i] = r
	}
	return &Resolver{rules: out}
}

// Rules returns the resolver's rule list.
func (r *Resolver) Rules() []Rule {
	return r.rules
}

// Match returns the first rule whose keyword occurs in text. The text is
// normalized first. Rule order, not position in text, decides the winner.
func (r *Resolver) Match(text string) (Rule, bool) {
	norm := Normalize(text)
	if norm == "" {
		return Rule{}, false
	}
	for _, rule := range r.rules {
		if rule.Boundary {
			if containsWord(norm, rule.Keyword) {
				return rule, true
			}
			continue
		}
		if strings.Contains(norm, rule.Keyword) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Resolve maps a free-text supplier name to a canonical identity and a
// homepage. Unmatched names fall back to a deterministic guess built from
// the raw name; the guess is not checked for reachability.
func (r *Resolver) Resolve(name string) Resolution {
	if rule, ok := r.Match(name); ok {
		return Resolution{CanonicalName: rule.Canonical, RedirectURL: rule.Homepage, Matched: true}
	}

	norm := Normalize(name)
	if norm == "" {
		return Resolution{CanonicalName: "unknown"}
	}

	guess := GuessHomepage(name)
	zap.L().Debug("provider: no rule matched, using homepage guess",
		zap.String("name", name),
		zap.String("guess", guess),
	)
	return Resolution{CanonicalName: strings.TrimSpace(name), RedirectURL: guess}
}

// GuessHomepage builds "https://www.<slug>.it" from a supplier name with
// legal suffixes removed. Returns "" when nothing usable remains.
func GuessHomepage(name string) string {
	norm := Normalize(name)
	for _, suf := range legalSuffixes {
		norm = strings.TrimSpace(strings.TrimSuffix(norm, " "+suf))
	}
	s := slug(norm)
	if s == "" {
		return ""
	}
	return "https://www." + s + ".it"
}
