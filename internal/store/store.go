// Package store persists bill profiles, the offer catalog and cached
// rankings in SQLite or Postgres.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/config"
	"github.com/sells-group/bill-advisor/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ProfileRecord is a reconciled profile with its record-level quality
// signals.
type ProfileRecord struct {
	Profile    model.BillProfile `json:"profile"`
	Confidence float64           `json:"confidence"`
	Violations []string          `json:"violations,omitempty"`
}

// ProfileFilter narrows ListProfiles.
type ProfileFilter struct {
	Kind   model.BillKind `json:"kind,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

// Store defines the persistence interface.
type Store interface {
	// Profiles. SaveProfile assigns an ID and CreatedAt when they are empty.
	SaveProfile(ctx context.Context, rec *ProfileRecord) error
	GetProfile(ctx context.Context, id string) (*ProfileRecord, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]ProfileRecord, error)

	// Offer catalog. An empty commodity lists every offer. Offers come
	// back ordered by offer ID.
	UpsertOffers(ctx context.Context, offers []model.EnergyOffer) (int64, error)
	ListOffers(ctx context.Context, commodity model.Commodity) ([]model.EnergyOffer, error)

	// Ranking cache. GetRanking returns the newest snapshot for a profile.
	SaveRanking(ctx context.Context, snap *model.RankingSnapshot) error
	GetRanking(ctx context.Context, profileID string) (*model.RankingSnapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, int32(cfg.MaxConns))
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
