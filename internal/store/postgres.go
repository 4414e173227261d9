package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/db"
	"github.com/sells-group/bill-advisor/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	q    queries
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: newQueries(sq.Dollar)}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL DEFAULT '',
	supplier   TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offers (
	offer_id      TEXT PRIMARY KEY,
	commodity     TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	data          JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rankings (
	id           TEXT PRIMARY KEY,
	profile_id   TEXT NOT NULL,
	catalog_hash TEXT NOT NULL,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_profiles_kind ON profiles(kind);
CREATE INDEX IF NOT EXISTS idx_offers_commodity ON offers(commodity);
CREATE INDEX IF NOT EXISTS idx_rankings_profile ON rankings(profile_id, created_at DESC);
`

// offerColumns is the COPY column order for UpsertOffers.
var offerColumns = []string{"offer_id", "commodity", "provider_name", "data", "updated_at"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, rec *ProfileRecord) error {
	data, err := prepareProfile(rec)
	if err != nil {
		return err
	}
	query, args, err := s.q.insertProfile(rec.Profile.ID, profileKind(rec.Profile), profileSupplier(rec.Profile),
		rec.Confidence, data, rec.Profile.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: build insert profile")
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return eris.Wrapf(err, "postgres: save profile %s", rec.Profile.ID)
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*ProfileRecord, error) {
	query, args, err := s.q.getProfile(id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get profile")
	}
	var data []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: profile %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", id)
	}
	return decodeProfile(data)
}

func (s *PostgresStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]ProfileRecord, error) {
	query, args, err := s.q.listProfiles(filter)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list profiles")
	}
	out := []ProfileRecord{}
	err = s.scanData(ctx, query, args, func(data []byte) error {
		rec, err := decodeProfile(data)
		if err != nil {
			return err
		}
		out = append(out, *rec)
		return nil
	})
	return out, eris.Wrap(err, "postgres: list profiles")
}

func (s *PostgresStore) UpsertOffers(ctx context.Context, offers []model.EnergyOffer) (int64, error) {
	if err := validateOffers(offers); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(offers))
	for _, o := range offers {
		data, err := marshalOffer(o)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{o.OfferID, string(o.Commodity), o.ProviderName, string(data), now})
	}
	n, err := db.MergeRows(ctx, s.pool, db.MergeSpec{
		Table:   "offers",
		Key:     "offer_id",
		Columns: offerColumns,
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert offers")
}

func (s *PostgresStore) ListOffers(ctx context.Context, commodity model.Commodity) ([]model.EnergyOffer, error) {
	query, args, err := s.q.listOffers(commodity)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list offers")
	}
	out := []model.EnergyOffer{}
	err = s.scanData(ctx, query, args, func(data []byte) error {
		o, err := decodeOffer(data)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, eris.Wrap(err, "postgres: list offers")
}

func (s *PostgresStore) SaveRanking(ctx context.Context, snap *model.RankingSnapshot) error {
	data, err := prepareRanking(snap)
	if err != nil {
		return err
	}
	query, args, err := s.q.insertRanking(snap, data, snap.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: build insert ranking")
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return eris.Wrapf(err, "postgres: save ranking for %s", snap.ProfileID)
}

func (s *PostgresStore) GetRanking(ctx context.Context, profileID string) (*model.RankingSnapshot, error) {
	query, args, err := s.q.getRanking(profileID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get ranking")
	}
	var data []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: ranking for %s", profileID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get ranking for %s", profileID)
	}
	return decodeRanking(data)
}

func (s *PostgresStore) scanData(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return rows.Err()
}
