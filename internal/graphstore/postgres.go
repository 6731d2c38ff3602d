package graphstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

//go:embed schema.sql
var schemaSQL string

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string `koanf:"dsn"`

	// MaxConns caps the pool size; zero keeps the pgx default.
	MaxConns int32 `koanf:"max_conns"`

	// SkipMigrate leaves the schema alone on open.
	SkipMigrate bool `koanf:"skip_migrate"`
}

// PostgresStore is a Store on PostgreSQL with pgvector.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, registers the vector type on every connection
// and applies the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DSN == "" {
		return nil, ctxitem.Invalidf("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, ctxitem.Invalidf("parsing postgres dsn: %v", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	s := &PostgresStore{logger: logger}

	if !cfg.SkipMigrate {
		// The vector type must exist before connections register it.
		conn, err := pgx.ConnectConfig(ctx, poolCfg.ConnConfig)
		if err != nil {
			return nil, unavailable("connecting", err)
		}
		_, err = conn.Exec(ctx, schemaSQL)
		conn.Close(ctx)
		if err != nil {
			return nil, unavailable("applying schema", err)
		}
	}

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	s.pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, unavailable("creating pool", err)
	}
	if err := s.pool.Ping(ctx); err != nil {
		s.pool.Close()
		return nil, unavailable("ping", err)
	}

	logger.Info("postgres store initialized",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return s, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ctxitem.ErrPersistenceUnavailable, op, err)
}

// UpsertChat implements Store.
func (s *PostgresStore) UpsertChat(ctx context.Context, chat ctxitem.Chat) error {
	if chat.ID == "" {
		return ctxitem.Invalidf("chat id is required")
	}
	const q = `
INSERT INTO chats (id, project_id, title, created_at)
VALUES ($1, $2, $3, COALESCE($4, now()))
ON CONFLICT (id) DO UPDATE SET
    project_id = EXCLUDED.project_id,
    title      = COALESCE(NULLIF(EXCLUDED.title, ''), chats.title),
    created_at = LEAST(chats.created_at, EXCLUDED.created_at)`
	var created any
	if !chat.CreatedAt.IsZero() {
		created = chat.CreatedAt
	}
	if _, err := s.pool.Exec(ctx, q, chat.ID, chat.ProjectID, chat.Title, created); err != nil {
		return unavailable("upserting chat", err)
	}
	return nil
}

const upsertItemSQL = `
INSERT INTO context_items (id, chat_id, project_id, content, summary, type, importance_score,
    created_at, token_count, is_summarized, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    chat_id          = EXCLUDED.chat_id,
    project_id       = EXCLUDED.project_id,
    content          = EXCLUDED.content,
    type             = EXCLUDED.type,
    created_at       = EXCLUDED.created_at,
    token_count      = EXCLUDED.token_count,
    metadata         = EXCLUDED.metadata,
    importance_score = GREATEST(context_items.importance_score, EXCLUDED.importance_score),
    embedding        = COALESCE(EXCLUDED.embedding, context_items.embedding),
    summary          = CASE WHEN EXCLUDED.is_summarized THEN EXCLUDED.summary ELSE context_items.summary END,
    is_summarized    = context_items.is_summarized OR EXCLUDED.is_summarized`

// UpsertItems implements Store.
func (s *PostgresStore) UpsertItems(ctx context.Context, items []*ctxitem.Item) error {
	ctx, span := tracer.Start(ctx, "PostgresStore.UpsertItems")
	defer span.End()
	span.SetAttributes(attribute.Int("item_count", len(items)))

	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		if err := validateItem(it); err != nil {
			return err
		}
		meta, err := json.Marshal(it.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", it.ID, err)
		}
		var emb any
		if len(it.Embedding) > 0 && !isZero(it.Embedding) {
			emb = pgvector.NewVector(it.Embedding)
		}
		batch.Queue(upsertItemSQL,
			it.ID, it.ChatID, it.ProjectID, it.Content, it.Summary, string(it.Type), it.ImportanceScore,
			it.Timestamp, it.TokenCount, it.IsSummarized, emb, meta)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return unavailable("upserting items", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// UpsertRelationships implements Store.
func (s *PostgresStore) UpsertRelationships(ctx context.Context, rels []ctxitem.Relationship) error {
	if len(rels) == 0 {
		return nil
	}
	for _, r := range rels {
		if err := validateRelationship(r); err != nil {
			return err
		}
	}

	const exists = `SELECT EXISTS (SELECT 1 FROM context_items WHERE id = $1)
    OR EXISTS (SELECT 1 FROM chats WHERE id = $1)`
	const upsert = `
INSERT INTO relationships (from_id, to_id, type, properties)
VALUES ($1, $2, $3, $4)
ON CONFLICT (from_id, to_id, type) DO UPDATE SET properties = EXCLUDED.properties`

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		checked := make(map[string]bool)
		for _, r := range rels {
			for _, id := range []string{r.FromID, r.ToID} {
				if checked[id] {
					continue
				}
				var ok bool
				if err := tx.QueryRow(ctx, exists, id).Scan(&ok); err != nil {
					return unavailable("checking endpoint", err)
				}
				if !ok {
					return missingEndpoint(id)
				}
				checked[id] = true
			}
			props, err := json.Marshal(r.Properties)
			if err != nil {
				return fmt.Errorf("encoding properties: %w", err)
			}
			if _, err := tx.Exec(ctx, upsert, r.FromID, r.ToID, string(r.Type), props); err != nil {
				return unavailable("upserting relationship", err)
			}
		}
		return nil
	})
}

// DeleteRelationship implements Store.
func (s *PostgresStore) DeleteRelationship(ctx context.Context, key ctxitem.EdgeKey) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM relationships WHERE from_id = $1 AND to_id = $2 AND type = $3`,
		key.From, key.To, string(key.Type))
	if err != nil {
		return unavailable("deleting relationship", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: relationship %s -[%s]-> %s", ctxitem.ErrNotFound, key.From, key.Type, key.To)
	}
	return nil
}

const itemColumns = `i.id, i.chat_id, i.project_id, i.content, i.summary, i.type, i.importance_score,
    i.created_at, i.token_count, i.is_summarized, i.embedding, i.metadata`

func scanItem(row pgx.Row, extra ...any) (*ctxitem.Item, error) {
	var (
		it   ctxitem.Item
		typ  string
		emb  *pgvector.Vector
		meta []byte
	)
	dest := append([]any{
		&it.ID, &it.ChatID, &it.ProjectID, &it.Content, &it.Summary, &typ, &it.ImportanceScore,
		&it.Timestamp, &it.TokenCount, &it.IsSummarized, &emb, &meta,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	it.Type = ctxitem.ItemType(typ)
	if emb != nil {
		it.Embedding = emb.Slice()
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &it.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

// GetItem implements Store.
func (s *PostgresStore) GetItem(ctx context.Context, id string) (*ctxitem.Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM context_items i WHERE i.id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s", ctxitem.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("getting item", err)
	}
	return it, nil
}

// GetChat implements Store.
func (s *PostgresStore) GetChat(ctx context.Context, id string) (*ctxitem.Chat, error) {
	var c ctxitem.Chat
	err := s.pool.QueryRow(ctx, `SELECT id, project_id, title, created_at FROM chats WHERE id = $1`, id).
		Scan(&c.ID, &c.ProjectID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat %s", ctxitem.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("getting chat", err)
	}
	return &c, nil
}

// where renders filter as SQL conditions on alias i, numbering parameters
// after the ones already in args.
func where(filter ItemFilter, args []any) ([]string, []any) {
	var conds []string
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ChatID != "" {
		add("i.chat_id = $%d", filter.ChatID)
	}
	if filter.ProjectID != "" {
		add("i.project_id = $%d", filter.ProjectID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("i.type = ANY($%d)", types)
	}
	if !filter.Since.IsZero() {
		add("i.created_at >= $%d", filter.Since)
	}
	if filter.ExcludeID != "" {
		add("i.id <> $%d", filter.ExcludeID)
	}
	return conds, args
}

func (s *PostgresStore) queryItems(ctx context.Context, conds []string, args []any, limit int) ([]*ctxitem.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM context_items i`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY i.created_at, i.id`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("listing items", err)
	}
	defer rows.Close()

	out := make([]*ctxitem.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, unavailable("scanning item", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing items", err)
	}
	return out, nil
}

// ListItems implements Store.
func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]*ctxitem.Item, error) {
	conds, args := where(filter, nil)
	return s.queryItems(ctx, conds, args, filter.Limit)
}

// KeywordCandidates implements Store.
func (s *PostgresStore) KeywordCandidates(ctx context.Context, keywords []string, filter ItemFilter) ([]*ctxitem.Item, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.KeywordCandidates")
	defer span.End()

	patterns := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != "" {
			patterns = append(patterns, "%"+likeEscaper.Replace(kw)+"%")
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	conds, args := where(filter, []any{patterns})
	conds = append([]string{"i.content ILIKE ANY($1)"}, conds...)
	out, err := s.queryItems(ctx, conds, args, filter.Limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// VectorSearch implements Store.
func (s *PostgresStore) VectorSearch(ctx context.Context, vec []float32, k int, minSimilarity float64, filter ItemFilter) ([]VectorHit, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.VectorSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, ctxitem.Invalidf("k must be positive, got %d", k)
	}
	if len(vec) == 0 || isZero(vec) {
		return nil, fmt.Errorf("%w: empty query vector", ErrVectorUnavailable)
	}

	args := []any{pgvector.NewVector(vec), len(vec), minSimilarity}
	conds, args := where(filter, args)
	conds = append([]string{
		"i.embedding IS NOT NULL",
		"vector_dims(i.embedding) = $2",
		"1 - (i.embedding <=> $1) >= $3",
	}, conds...)
	args = append(args, k)
	q := `SELECT ` + itemColumns + `, 1 - (i.embedding <=> $1) AS similarity
FROM context_items i
WHERE ` + strings.Join(conds, " AND ") + `
ORDER BY i.embedding <=> $1, i.id
LIMIT $` + fmt.Sprint(len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrVectorUnavailable, err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var sim float64
		it, err := scanItem(rows, &sim)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrVectorUnavailable, err)
		}
		hits = append(hits, VectorHit{Item: it, Similarity: ctxitem.Clamp01(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVectorUnavailable, err)
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Neighbors implements Store.
func (s *PostgresStore) Neighbors(ctx context.Context, id string, types ...ctxitem.RelationType) ([]Neighbor, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.Neighbors")
	defer span.End()

	args := []any{id}
	q := `SELECT ` + itemColumns + `, r.from_id, r.to_id, r.type, r.properties
FROM relationships r
JOIN context_items i ON i.id = CASE WHEN r.from_id = $1 THEN r.to_id ELSE r.from_id END
WHERE (r.from_id = $1 OR r.to_id = $1)`
	if len(types) > 0 {
		ts := make([]string, len(types))
		for i, t := range types {
			ts[i] = string(t)
		}
		args = append(args, ts)
		q += ` AND r.type = ANY($2)`
	}
	q += ` ORDER BY r.type, r.from_id, r.to_id`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		span.RecordError(err)
		return nil, unavailable("querying neighbors", err)
	}
	defer rows.Close()

	out := make([]Neighbor, 0)
	for rows.Next() {
		var (
			r     ctxitem.Relationship
			typ   string
			props []byte
		)
		it, err := scanItem(rows, &r.FromID, &r.ToID, &typ, &props)
		if err != nil {
			return nil, unavailable("scanning neighbor", err)
		}
		r.Type = ctxitem.RelationType(typ)
		if len(props) > 0 {
			if err := json.Unmarshal(props, &r.Properties); err != nil {
				return nil, fmt.Errorf("decoding properties: %w", err)
			}
		}
		out = append(out, Neighbor{Item: it, Relationship: r, Outgoing: r.FromID == id})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("querying neighbors", err)
	}
	return out, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.logger.Info("postgres store closed")
	return nil
}
