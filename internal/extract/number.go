package extract

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseNumber converts a bill-formatted number to float64. Comma is the
// decimal separator ("0,22"); a dot is a decimal separator unless the
// string also carries a comma ("1.234,56"), repeats ("1.234.567"), or
// thousands is set and exactly three digits follow it ("2.700").
func ParseNumber(raw string, thousands bool) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, eris.New("extract: empty number")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, eris.Errorf("extract: ambiguous number %q", raw)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case lastDot >= 0 && thousands && len(s)-lastDot-1 == 3:
		s = strings.ReplaceAll(s, ".", "")
	}

	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: parse number %q", raw)
	}
	return v, nil
}
