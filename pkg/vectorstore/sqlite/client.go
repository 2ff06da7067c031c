// Package sqlite provides a SQLite implementation of the vector index.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale deployments. Vectors are stored as JSON strings in TEXT
// fields, and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using SQLite as the backend.
type Client struct {
	db *sql.DB

	// collectionName is the name of the table storing points.
	collectionName string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite vector store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the name of the table to use.
	CollectionName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new SQLite vector store client.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	collection := cfg.CollectionName
	if collection == "" {
		collection = "memories"
	}

	client := &Client{
		db:             db,
		collectionName: collection,
		dimensions:     cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the table structure.
//
// Vectors and metadata are stored as JSON strings in TEXT fields.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			agent_id TEXT,
			run_id TEXT,
			text TEXT NOT NULL,
			hash TEXT,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)
	`, c.collectionName)

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			hash = excluded.hash,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, c.collectionName)

	for _, point := range points {
		embeddingJSON, err := json.Marshal(point.Vector)
		if err != nil {
			return fmt.Errorf("Insert: %w", err)
		}
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
			string(embeddingJSON),
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

// Search performs similarity search using cosine similarity.
//
// SQLite has no native vector operations, so similarity is calculated in
// memory after loading all records matching the scope filters.
func (c *Client) Search(ctx context.Context, vector []float32, opts *vectorstore.SearchOptions) ([]*vectorstore.Point, error) {
	if opts == nil {
		opts = &vectorstore.SearchOptions{}
	}

	whereClause, args := buildWhereClause(&opts.Filters)

	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at
		FROM %s
		%s
		ORDER BY id
	`, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []*vectorstore.Point
	for rows.Next() {
		point, err := c.scanPoint(rows)
		if err != nil {
			return nil, err
		}
		if !matchMetadata(point.Payload.Metadata, opts.Filters.Metadata) {
			continue
		}
		point.Score = cosineSimilarity(vector, point.Vector)
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return sortByScore(points, opts.Limit), nil
}

// Get retrieves a point by ID. A missing ID yields (nil, nil).
func (c *Client) Get(ctx context.Context, id string) (*vectorstore.Point, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, agent_id, run_id, text, hash, embedding, metadata, created_at, updated_at
		FROM %s
		WHERE id = ?
	`, c.collectionName)

	row := c.db.QueryRowContext(ctx, query, id)
	point, err := c.scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
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

	embeddingJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
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
		SET text = ?, hash = ?, embedding = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, c.collectionName)

	result, err := c.db.ExecContext(ctx, query,
		payload.Text,
		payload.Hash,
		string(embeddingJSON),
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
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.collectionName)

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

	whereClause, args := buildWhereClause(&opts.Filters)

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
		point, err := c.scanPoint(rows)
		if err != nil {
			return nil, err
		}
		if !matchMetadata(point.Payload.Metadata, opts.Filters.Metadata) {
			continue
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
	whereClause, args := buildWhereClause(filters)

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

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (c *Client) scanPoint(row scanner) (*vectorstore.Point, error) {
	var (
		point         vectorstore.Point
		embeddingJSON string
		metadataJSON  sql.NullString
		createdAt     time.Time
		updatedAt     sql.NullTime
	)

	err := row.Scan(
		&point.ID,
		&point.Payload.UserID,
		&point.Payload.AgentID,
		&point.Payload.RunID,
		&point.Payload.Text,
		&point.Payload.Hash,
		&embeddingJSON,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(embeddingJSON), &point.Vector); err != nil {
		return nil, fmt.Errorf("scanPoint: invalid embedding: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &point.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("scanPoint: invalid metadata: %w", err)
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
