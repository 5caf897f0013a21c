package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type Config struct {
	DSN       string
	Table     string
	VectorDim int
}

// Store keeps vectors in a pgvector column with an HNSW cosine index.
type Store struct {
	log   *logger.Logger
	pool  *pgxpool.Pool
	table string
	dim   int
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("PGVECTOR_DSN is required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("pgvector: invalid dimension %d", cfg.VectorDim)
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "candidate_embedding"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("pgvector: invalid table name %q", table)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}
	s := &Store{log: log.With("service", "PgVectorStore"), pool: pool, table: table, dim: cfg.VectorDim}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("pgvector store selected", "provider", "pgvector", "table", table, "vector_dim", cfg.VectorDim)
	return s, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table, s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	// format_type renders the declared type, e.g. "vector(1536)".
	var declared string
	err := s.pool.QueryRow(ctx, `
		SELECT format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = $1::regclass AND a.attname = 'embedding'`, s.table).Scan(&declared)
	if err != nil {
		return fmt.Errorf("pgvector schema inspect: %w", err)
	}
	if want := fmt.Sprintf("vector(%d)", s.dim); declared != want {
		return fmt.Errorf("pgvector table %q: %w: expected=%s actual=%s", s.table, vectorstore.ErrDimensionMismatch, want, declared)
	}
	return nil
}

func schemaStatements(table string, dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace text NOT NULL,
			id text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		)`, table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
	}
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	stmt := fmt.Sprintf(`
		INSERT INTO %s (namespace, id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3::vector, $4::jsonb, now())
		ON CONFLICT (namespace, id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()`, s.table)
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return fmt.Errorf("pgvector upsert: vector id is required")
		}
		if len(v.Values) != s.dim {
			return vectorstore.DimensionError("pgvector upsert", s.dim, len(v.Values))
		}
		meta, err := json.Marshal(nonNilMap(v.Metadata))
		if err != nil {
			return fmt.Errorf("pgvector upsert: encode metadata: %w", err)
		}
		batch.Queue(stmt, namespace, id, encodeVector(v.Values), string(meta))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range vectors {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvector upsert: %w", err)
		}
	}
	return nil
}

// QueryMatches bounds the HNSW candidate list with hnsw.ef_search = poolSize
// for the duration of one transaction.
func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK, poolSize int, filter map[string]any) ([]vectorstore.VectorMatch, error) {
	if len(q) != s.dim {
		return nil, vectorstore.DimensionError("pgvector query", s.dim, len(q))
	}
	if topK <= 0 {
		topK = 10
	}
	if poolSize < topK {
		poolSize = topK
	}
	sql, args, err := buildQuery(s.table, namespace, encodeVector(q), topK, filter)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(poolSize)); err != nil {
		return nil, fmt.Errorf("pgvector query: set ef_search: %w", err)
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.VectorMatch, error) {
		var m vectorstore.VectorMatch
		err := row.Scan(&m.ID, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	vectorstore.SortMatches(out)
	return out, nil
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)`, s.table), namespace, clean)
	if err != nil {
		return fmt.Errorf("pgvector delete: %w", err)
	}
	return nil
}

// buildQuery renders the ranked search. Score is cosine similarity,
// 1 - cosine distance.
func buildQuery(table, namespace, vec string, topK int, filter map[string]any) (string, []any, error) {
	args := []any{vec, namespace}
	where := []string{"namespace = $2"}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := filter[k].(type) {
		case []string:
			args = append(args, k, v)
			where = append(where, fmt.Sprintf("metadata->>$%d = ANY($%d)", len(args)-1, len(args)))
		case []any:
			vals := make([]string, 0, len(v))
			for _, x := range v {
				vals = append(vals, fmt.Sprint(x))
			}
			args = append(args, k, vals)
			where = append(where, fmt.Sprintf("metadata->>$%d = ANY($%d)", len(args)-1, len(args)))
		case map[string]any:
			return "", nil, fmt.Errorf("pgvector: nested filter for %q is not supported", k)
		default:
			args = append(args, k, fmt.Sprint(v))
			where = append(where, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
		}
	}
	args = append(args, topK)
	sql := fmt.Sprintf(
		`SELECT id, 1 - (embedding <=> $1::vector) AS score FROM %s WHERE %s ORDER BY embedding <=> $1::vector LIMIT $%d`,
		table, strings.Join(where, " AND "), len(args),
	)
	return sql, args, nil
}

// encodeVector renders the pgvector text form, e.g. "[0.1,0.2]".
func encodeVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
