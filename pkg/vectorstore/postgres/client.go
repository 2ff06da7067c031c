// Package postgres provides a PostgreSQL implementation of the vector index
// backed by the pgvector extension.
//
// Similarity search runs inside the database using the cosine distance
// operator, so it scales past what the in-memory SQLite backend can handle.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using PostgreSQL with pgvector.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains configuration for creating a PostgreSQL vector store.
type Config struct {
	// DSN is a full connection string. When set, the individual
	// connection fields below are ignored.
	DSN string

	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// CollectionName is the name of the table to use.
	CollectionName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new PostgreSQL vector store client.
//
// The pgvector extension is created if missing, which requires the
// connecting role to have the necessary privilege.
func NewClient(cfg *Config) (*Client, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	collection := cfg.CollectionName
	if collection == "" {
		collection = "memories"
	}
	dims := cfg.EmbeddingModelDims
	if dims == 0 {
		dims = 1536
	}

	client := &Client{
		db:             db,
		collectionName: collection,
		dimensions:     dims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			agent_id TEXT,
			run_id TEXT,
			text TEXT NOT NULL,
			hash TEXT,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s(user_id, agent_id, run_id)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert upserts points by ID.
func (c *Client) Insert(ctx context.Context, points []vectorstore.Point) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			hash = EXCLUDED.hash,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, c.collectionName)

	for _, point := range points {
		metadataJSON, err := json.Marshal(point.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("Insert: %w", err)
		}

		createdAt := point.Payload.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err = c.db.ExecContext(ctx, query,
			point.ID,
			point.Payload.UserID,
			point.Payload.AgentID,
			point.Payload.RunID,
			point.Payload.Text,
			point.Payload.Hash,
			pgvector.NewVector(point.Vector),
			string(metadataJSON),
			createdAt,
			nullableTime(point.Payload.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("Insert: %w", err)
		}
	}

	return nil
}

// Search performs similarity search using the pgvector cosine distance
// operator. Results are ordered by ascending distance, i.e. descending
// similarity, inside the database.
func (c *Client) Search(ctx context.Context, vector []float32, opts *vectorstore.SearchOptions) ([]*vectorstore.Point, error) {
	if opts == nil {
		opts = &vectorstore.SearchOptions{}
	}

	whereClause, args := buildWhereClause(&opts.Filters, 1)
	queryVector := pgvector.NewVector(vector)
	args = append(args, queryVector)
	vectorArg := len(args)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at,
		       1 - (embedding <=> $%d) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $%d
		LIMIT %d
	`, vectorArg, c.collectionName, whereClause, vectorArg, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []*vectorstore.Point
	for rows.Next() {
		point, err := scanPoint(rows, true)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return points, nil
}

// Get retrieves a point by ID. A missing ID yields (nil, nil).
func (c *Client) Get(ctx context.Context, id string) (*vectorstore.Point, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, c.collectionName)

	rows, err := c.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("Get: %w", err)
		}
		return nil, nil
	}

	point, err := scanPoint(rows, false)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return point, nil
}

// Update replaces the vector and/or payload of an existing point.
func (c *Client) Update(ctx context.Context, id string, vector []float32, payload *vectorstore.Payload) error {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("Update: point %s not found", id)
	}

	if vector == nil {
		vector = existing.Vector
	}
	if payload == nil {
		payload = &existing.Payload
	}

	metadataJSON, err := json.Marshal(payload.Metadata)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	updatedAt := payload.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET text = $1, hash = $2, embedding = $3, metadata = $4, updated_at = $5
		WHERE id = $6
	`, c.collectionName)

	result, err := c.db.ExecContext(ctx, query,
		payload.Text,
		payload.Hash,
		pgvector.NewVector(vector),
		string(metadataJSON),
		updatedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Update: point %s not found", id)
	}

	return nil
}

// Delete removes a point by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.collectionName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Delete: point %s not found", id)
	}

	return nil
}

// List returns points matching the filters, most recently created first.
func (c *Client) List(ctx context.Context, opts *vectorstore.ListOptions) ([]*vectorstore.Point, error) {
	if opts == nil {
		opts = &vectorstore.ListOptions{}
	}

	whereClause, args := buildWhereClause(&opts.Filters, 1)

	limitClause := ""
	if opts.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", opts.Limit)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at
		FROM %s
		%s
		ORDER BY created_at DESC, id
		%s
	`, c.collectionName, whereClause, limitClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []*vectorstore.Point
	for rows.Next() {
		point, err := scanPoint(rows, false)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	return points, nil
}

// DeleteAll removes every point matching the filters.
func (c *Client) DeleteAll(ctx context.Context, filters *vectorstore.Filters) error {
	whereClause, args := buildWhereClause(filters, 1)

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Reset drops and recreates the collection.
func (c *Client) Reset(ctx context.Context) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", c.collectionName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return c.initTables(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func scanPoint(rows *sql.Rows, withScore bool) (*vectorstore.Point, error) {
	var (
		point        vectorstore.Point
		embedding    pgvector.Vector
		metadataJSON sql.NullString
		createdAt    time.Time
		updatedAt    sql.NullTime
	)

	dest := []interface{}{
		&point.ID,
		&point.Payload.UserID,
		&point.Payload.AgentID,
		&point.Payload.RunID,
		&point.Payload.Text,
		&point.Payload.Hash,
		&embedding,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	}
	if withScore {
		dest = append(dest, &point.Score)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	point.Vector = embedding.Slice()
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &point.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata: %w", err)
		}
	}
	point.Payload.CreatedAt = createdAt
	if updatedAt.Valid {
		point.Payload.UpdatedAt = updatedAt.Time
	}

	return &point, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
