package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Backend backed by pgvector, grounded on the teacher's
// postgres_vector.go adapter and extended with Get, GetWhere, Update,
// and Count. Metadata is stored as JSONB; Update writes metadata only
// and never touches the vec column, matching spec §4.4's requirement
// that metadata-only updates not re-embed.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	metric string
}

// NewPostgres ensures the pgvector extension and embeddings table exist
// and returns a ready Backend.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, dimensions int, metric string) (*Postgres, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS conversation_entries (
  id TEXT PRIMARY KEY,
  vec %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create conversation_entries table: %w", err)
	}
	return &Postgres{pool: pool, dim: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}, nil
}

func (p *Postgres) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadatas []map[string]string) error {
	for i, id := range ids {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		var meta map[string]string
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		_, err = p.pool.Exec(ctx, `
INSERT INTO conversation_entries(id, vec, metadata) VALUES($1, $2::vector, $3)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec, metadata=EXCLUDED.metadata
`, id, toVectorLiteral(vec), metaJSON)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, metadata FROM conversation_entries WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) GetWhere(ctx context.Context, filter map[string]string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, metadata FROM conversation_entries WHERE metadata @> $1 ORDER BY id LIMIT $2`,
		filterJSON, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Record, error) {
	if k <= 0 {
		k = 10
	}
	op, scoreExpr := "<=>", "1 - (vec <=> $1::vector)"
	switch p.metric {
	case "l2", "euclidean":
		op, scoreExpr = "<->", "-(vec <-> $1::vector)"
	case "ip", "dot":
		op, scoreExpr = "<#>", "-(vec <#> $1::vector)"
	}

	vecLit := toVectorLiteral(vector)
	args := []any{vecLit, k}
	where := ""
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, err
		}
		where = "WHERE metadata @> $3"
		args = []any{vecLit, k, filterJSON}
	}
	query := fmt.Sprintf(`SELECT id, %s AS score, metadata FROM conversation_entries %s ORDER BY vec %s $1::vector LIMIT $2`, scoreExpr, where, op)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, k)
	for rows.Next() {
		var r Record
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &r.Score, &metaJSON); err != nil {
			return nil, err
		}
		r.Metadata = decodeMetaJSON(metaJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Update(ctx context.Context, ids []string, metadatas []map[string]string) error {
	for i, id := range ids {
		var meta map[string]string
		if i < len(metadatas) {
			meta = metadatas[i]
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		_, err = p.pool.Exec(ctx, `UPDATE conversation_entries SET metadata=$2 WHERE id=$1`, id, metaJSON)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM conversation_entries`).Scan(&n)
	return n, err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func decodeMetaJSON(raw []byte) map[string]string {
	var m map[string]string
	_ = json.Unmarshal(raw, &m)
	return m
}

// rowScanner is the subset of pgx.Rows Get/GetWhere need, kept narrow so
// scanRecords is testable without a live pool.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var id string
		var metaJSON []byte
		if err := rows.Scan(&id, &metaJSON); err != nil {
			return nil, err
		}
		out = append(out, Record{ID: id, Metadata: decodeMetaJSON(metaJSON)})
	}
	return out, rows.Err()
}
