// Package catalog loads energy offers from JSON and XLSX files and from
// scraped offer pages.
package catalog

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/model"
)

// LoadFile reads a catalog file, choosing the parser by extension
// (.json or .xlsx).
func LoadFile(path string) ([]model.EnergyOffer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadJSON(f)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadJSON decodes a JSON array of offers and validates every record.
func ReadJSON(r io.Reader) ([]model.EnergyOffer, error) {
	var offers []model.EnergyOffer
	if err := json.NewDecoder(r).Decode(&offers); err != nil {
		return nil, eris.Wrap(err, "catalog: decode json")
	}
	if err := Validate(offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// Validate checks every offer's shape and rejects duplicate offer ids. A
// record without a usable commodity fails with an error wrapping
// model.ErrMissingCommodity.
func Validate(offers []model.EnergyOffer) error {
	seen := make(map[string]int, len(offers))
	for i, o := range offers {
		if err := model.ValidateOffer(o); err != nil {
			return eris.Wrapf(err, "catalog: record %d", i+1)
		}
		if prev, dup := seen[o.OfferID]; dup {
			return eris.Errorf("catalog: offer id %q repeated in records %d and %d", o.OfferID, prev+1, i+1)
		}
		seen[o.OfferID] = i
	}

	unpriced := 0
	for _, o := range offers {
		if _, ok := o.UnitPrice(); !ok {
			unpriced++
		}
	}
	zap.L().Debug("catalog: validated offers",
		zap.Int("offers", len(offers)),
		zap.Int("unpriced", unpriced),
	)
	return nil
}
