package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/model"
)

const defaultListLimit = 100

// queries builds the statements shared by both backends; only the
// placeholder format differs.
type queries struct {
	b sq.StatementBuilderType
}

func newQueries(ph sq.PlaceholderFormat) queries {
	return queries{b: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (q queries) insertProfile(id string, kind, supplier string, confidence float64, data []byte, createdAt any) (string, []any, error) {
	return q.b.Insert("profiles").
		Columns("id", "kind", "supplier", "confidence", "data", "created_at").
		Values(id, kind, supplier, confidence, string(data), createdAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, supplier = excluded.supplier, " +
			"confidence = excluded.confidence, data = excluded.data").
		ToSql()
}

func (q queries) getProfile(id string) (string, []any, error) {
	return q.b.Select("data").From("profiles").Where(sq.Eq{"id": id}).ToSql()
}

func (q queries) listProfiles(f ProfileFilter) (string, []any, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	sel := q.b.Select("data").From("profiles").
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit))
	if f.Kind != "" {
		sel = sel.Where(sq.Eq{"kind": string(f.Kind)})
	}
	if f.Offset > 0 {
		sel = sel.Offset(uint64(f.Offset))
	}
	return sel.ToSql()
}

func (q queries) upsertOffer(o model.EnergyOffer, data []byte, updatedAt any) (string, []any, error) {
	return q.b.Insert("offers").
		Columns("offer_id", "commodity", "provider_name", "data", "updated_at").
		Values(o.OfferID, string(o.Commodity), o.ProviderName, string(data), updatedAt).
		Suffix("ON CONFLICT (offer_id) DO UPDATE SET commodity = excluded.commodity, " +
			"provider_name = excluded.provider_name, data = excluded.data, updated_at = excluded.updated_at").
		ToSql()
}

func (q queries) listOffers(c model.Commodity) (string, []any, error) {
	sel := q.b.Select("data").From("offers").OrderBy("offer_id")
	if c != "" {
		sel = sel.Where(sq.Eq{"commodity": string(c)})
	}
	return sel.ToSql()
}

func (q queries) insertRanking(s *model.RankingSnapshot, data []byte, createdAt any) (string, []any, error) {
	return q.b.Insert("rankings").
		Columns("id", "profile_id", "catalog_hash", "data", "created_at").
		Values(s.ID, s.ProfileID, s.CatalogHash, string(data), createdAt).
		ToSql()
}

func (q queries) getRanking(profileID string) (string, []any, error) {
	return q.b.Select("data").From("rankings").
		Where(sq.Eq{"profile_id": profileID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
}

// prepareProfile fills the ID and timestamp and encodes the record.
func prepareProfile(rec *ProfileRecord) ([]byte, error) {
	if rec.Profile.ID == "" {
		rec.Profile.ID = uuid.NewString()
	}
	if rec.Profile.CreatedAt.IsZero() {
		rec.Profile.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	return data, eris.Wrap(err, "store: marshal profile")
}

func prepareRanking(s *model.RankingSnapshot) ([]byte, error) {
	if s.ProfileID == "" {
		return nil, eris.New("store: ranking snapshot has no profile id")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	return data, eris.Wrap(err, "store: marshal ranking")
}

func profileKind(p model.BillProfile) string {
	if p.BillKind == nil {
		return ""
	}
	return string(*p.BillKind)
}

func profileSupplier(p model.BillProfile) string {
	if p.SupplierName == nil {
		return ""
	}
	return *p.SupplierName
}

func decodeProfile(data []byte) (*ProfileRecord, error) {
	var rec ProfileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal profile")
	}
	return &rec, nil
}

func decodeOffer(data []byte) (model.EnergyOffer, error) {
	var o model.EnergyOffer
	err := json.Unmarshal(data, &o)
	return o, eris.Wrap(err, "store: unmarshal offer")
}

func decodeRanking(data []byte) (*model.RankingSnapshot, error) {
	var s model.RankingSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal ranking")
	}
	return &s, nil
}

// validateOffers rejects malformed catalog records before any write.
func validateOffers(offers []model.EnergyOffer) error {
	for _, o := range offers {
		if err := model.ValidateOffer(o); err != nil {
			return eris.Wrap(err, "store: upsert offers")
		}
	}
	return nil
}

func marshalOffer(o model.EnergyOffer) ([]byte, error) {
	data, err := json.Marshal(o)
	return data, eris.Wrapf(err, "store: marshal offer %s", o.OfferID)
}
