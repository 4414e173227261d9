package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bill-advisor/internal/model"
)

// sqliteTime is fixed width so text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  queries
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: newQueries(sq.Question)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL DEFAULT '',
	supplier   TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS offers (
	offer_id      TEXT PRIMARY KEY,
	commodity     TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	data          TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rankings (
	id           TEXT PRIMARY KEY,
	profile_id   TEXT NOT NULL,
	catalog_hash TEXT NOT NULL,
	data         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON profiles(created_at);
CREATE INDEX IF NOT EXISTS idx_profiles_kind ON profiles(kind);
CREATE INDEX IF NOT EXISTS idx_offers_commodity ON offers(commodity);
CREATE INDEX IF NOT EXISTS idx_rankings_profile ON rankings(profile_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, rec *ProfileRecord) error {
	data, err := prepareProfile(rec)
	if err != nil {
		return err
	}
	query, args, err := s.q.insertProfile(rec.Profile.ID, profileKind(rec.Profile), profileSupplier(rec.Profile),
		rec.Confidence, data, rec.Profile.CreatedAt.UTC().Format(sqliteTime))
	if err != nil {
		return eris.Wrap(err, "sqlite: build insert profile")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return eris.Wrapf(err, "sqlite: save profile %s", rec.Profile.ID)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*ProfileRecord, error) {
	query, args, err := s.q.getProfile(id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get profile")
	}
	var data string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: profile %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", id)
	}
	return decodeProfile([]byte(data))
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]ProfileRecord, error) {
	query, args, err := s.q.listProfiles(filter)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list profiles")
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
	return out, eris.Wrap(err, "sqlite: list profiles")
}

func (s *SQLiteStore) UpsertOffers(ctx context.Context, offers []model.EnergyOffer) (int64, error) {
	if err := validateOffers(offers); err != nil {
		return 0, err
	}
	if len(offers) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(sqliteTime)
	for _, o := range offers {
		data, err := marshalOffer(o)
		if err != nil {
			return 0, err
		}
		query, args, err := s.q.upsertOffer(o, data, now)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: build upsert offer")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert offer %s", o.OfferID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit offers")
	}
	return int64(len(offers)), nil
}

func (s *SQLiteStore) ListOffers(ctx context.Context, commodity model.Commodity) ([]model.EnergyOffer, error) {
	query, args, err := s.q.listOffers(commodity)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list offers")
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
	return out, eris.Wrap(err, "sqlite: list offers")
}

func (s *SQLiteStore) SaveRanking(ctx context.Context, snap *model.RankingSnapshot) error {
	data, err := prepareRanking(snap)
	if err != nil {
		return err
	}
	query, args, err := s.q.insertRanking(snap, data, snap.CreatedAt.UTC().Format(sqliteTime))
	if err != nil {
		return eris.Wrap(err, "sqlite: build insert ranking")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return eris.Wrapf(err, "sqlite: save ranking for %s", snap.ProfileID)
}

func (s *SQLiteStore) GetRanking(ctx context.Context, profileID string) (*model.RankingSnapshot, error) {
	query, args, err := s.q.getRanking(profileID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get ranking")
	}
	var data string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: ranking for %s", profileID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get ranking for %s", profileID)
	}
	return decodeRanking([]byte(data))
}

func (s *SQLiteStore) scanData(ctx context.Context, query string, args []any, fn func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
