package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MergeSpec describes a keyed table that takes whole batches of records,
// such as the offer catalog.
type MergeSpec struct {
	Table   string   // may be schema-qualified
	Key     string   // single-column primary key
	Columns []string // COPY order; must include Key
}

func (m MergeSpec) keyIndex() int {
	for i, c := range m.Columns {
		if c == m.Key {
			return i
		}
	}
	return -1
}

// stagingTable is the per-transaction table rows are copied into.
func (m MergeSpec) stagingTable() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

// MergeRows writes a batch keyed on spec.Key inside one transaction. Rows
// are streamed with COPY into a staging table and then merged, so a catalog
// re-import replaces records in place. When a key repeats within the batch
// the last row wins. Returns the number of rows inserted or updated.
func MergeRows(ctx context.Context, pool Pool, spec MergeSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	key := spec.keyIndex()
	if key < 0 {
		return 0, eris.Errorf("db: merge %s: key %q not among columns", spec.Table, spec.Key)
	}
	rows = lastByKey(rows, key)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, stagingDDL(spec)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", spec.Table)
	}
	staging := pgx.Identifier{spec.stagingTable()}
	if _, err := tx.CopyFrom(ctx, staging, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy rows", spec.Table)
	}
	tag, err := tx.Exec(ctx, mergeSQL(spec))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: apply", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit tx")
	}
	return tag.RowsAffected(), nil
}

// lastByKey drops earlier rows that share a key with a later one, keeping
// first-seen order. Postgres refuses to update one row twice in a single
// INSERT ... ON CONFLICT.
func lastByKey(rows [][]any, key int) [][]any {
	last := make(map[any]int, len(rows))
	for i, r := range rows {
		last[r[key]] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([][]any, 0, len(last))
	seen := make(map[any]bool, len(last))
	for _, r := range rows {
		k := r[key]
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rows[last[k]])
	}
	return out
}

func stagingDDL(spec MergeSpec) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{spec.stagingTable()}.Sanitize(), qualified(spec.Table))
}

func mergeSQL(spec MergeSpec) string {
	cols := make([]string, len(spec.Columns))
	var set []string
	for i, c := range spec.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		if c != spec.Key {
			set = append(set, cols[i]+" = EXCLUDED."+cols[i])
		}
	}
	list := strings.Join(cols, ", ")
	conflict := "DO NOTHING"
	if len(set) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		qualified(spec.Table), list, list,
		pgx.Identifier{spec.stagingTable()}.Sanitize(),
		pgx.Identifier{spec.Key}.Sanitize(), conflict)
}

// qualified quotes a table name, keeping a schema prefix separate.
func qualified(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}
