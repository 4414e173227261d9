package ranking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/bill-advisor/internal/model"
)

// CatalogHash fingerprints a set of offers independent of their order.
func CatalogHash(offers []model.EnergyOffer) string {
	sorted := slices.Clone(offers)
	slices.SortFunc(sorted, func(a, b model.EnergyOffer) int {
		return strings.Compare(a.OfferID, b.OfferID)
	})
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, o := range sorted {
		// EnergyOffer holds only plain values; Encode cannot fail.
		_ = enc.Encode(o)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewSnapshot wraps a ranking for caching.
func NewSnapshot(profileID string, offers []model.EnergyOffer, ranked []model.RankedOffer) model.RankingSnapshot {
	return model.RankingSnapshot{
		ID:          uuid.NewString(),
		ProfileID:   profileID,
		CatalogHash: CatalogHash(offers),
		Offers:      ranked,
		CreatedAt:   time.Now().UTC(),
	}
}

// Fresh reports whether a snapshot can be reused for the given catalog.
func Fresh(s model.RankingSnapshot, catalogHash string, ttl time.Duration, now time.Time) bool {
	if s.CatalogHash != catalogHash {
		return false
	}
	return ttl <= 0 || now.Sub(s.CreatedAt) < ttl
}
