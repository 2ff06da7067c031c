// Package sqlite provides a SQLite implementation of the graph store.
//
// Triples are rows keyed by (scope, source, relationship, destination).
// Entity matching in Search is by case-insensitive exact name.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-ai/engram-go/pkg/graphstore"
)

// Store implements graphstore.Store using SQLite as the backend.
type Store struct {
	db        *sql.DB
	tableName string
}

// Config contains configuration for creating a SQLite graph store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the triples table, defaults to "graph_triples".
	TableName string
}

// NewStore creates a new SQLite graph store.
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewGraphStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "graph_triples"
	}

	store := &Store{db: db, tableName: table}
	if err := store.initTables(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT,
			agent_id TEXT,
			run_id TEXT,
			source TEXT NOT NULL,
			source_type TEXT,
			relationship TEXT NOT NULL,
			destination TEXT NOT NULL,
			destination_type TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, agent_id, run_id, source, relationship, destination)
		)
	`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s(user_id, agent_id, run_id)
	`, s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert stores triples under the given scope, overwriting conflicting edges.
func (s *Store) Upsert(ctx context.Context, triples []graphstore.Triple, filters *graphstore.Filters) (*graphstore.UpsertResult, error) {
	if filters == nil {
		filters = &graphstore.Filters{}
	}

	result := &graphstore.UpsertResult{}

	for _, triple := range triples {
		if triple.Source == "" || triple.Relationship == "" || triple.Destination == "" {
			continue
		}

		// Find edges with the same source+relationship but a different
		// destination; those are overwritten, not merged.
		conflictWhere, conflictArgs := scopeWhere(filters,
			"source = ?", "relationship = ?", "destination != ?")
		conflictQuery := fmt.Sprintf(`
			SELECT source, source_type, relationship, destination, destination_type
			FROM %s %s
		`, s.tableName, conflictWhere)

		rows, err := s.db.QueryContext(ctx, conflictQuery,
			append(conflictArgs, triple.Source, triple.Relationship, triple.Destination)...,
		)
		if err != nil {
			return nil, fmt.Errorf("Upsert: %w", err)
		}

		var conflicts []graphstore.Triple
		for rows.Next() {
			var t graphstore.Triple
			var sourceType, destType sql.NullString
			if err := rows.Scan(&t.Source, &sourceType, &t.Relationship, &t.Destination, &destType); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("Upsert: %w", err)
			}
			t.SourceType = sourceType.String
			t.DestinationType = destType.String
			conflicts = append(conflicts, t)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("Upsert: %w", err)
		}
		_ = rows.Close()

		if len(conflicts) > 0 {
			deleteQuery := fmt.Sprintf("DELETE FROM %s %s", s.tableName, conflictWhere)
			_, deleteArgs := scopeConditions(filters)
			if _, err := s.db.ExecContext(ctx, deleteQuery,
				append(deleteArgs, triple.Source, triple.Relationship, triple.Destination)...,
			); err != nil {
				return nil, fmt.Errorf("Upsert: %w", err)
			}
			result.Deleted = append(result.Deleted, conflicts...)
		}

		insertQuery := fmt.Sprintf(`
			INSERT INTO %s (user_id, agent_id, run_id, source, source_type, relationship, destination, destination_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, agent_id, run_id, source, relationship, destination) DO NOTHING
		`, s.tableName)

		res, err := s.db.ExecContext(ctx, insertQuery,
			filters.UserID, filters.AgentID, filters.RunID,
			triple.Source, triple.SourceType, triple.Relationship, triple.Destination, triple.DestinationType,
		)
		if err != nil {
			return nil, fmt.Errorf("Upsert: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			result.Added = append(result.Added, triple)
		}
	}

	return result, nil
}

// Search returns triples whose source or destination matches any entity name.
func (s *Store) Search(ctx context.Context, entities []string, filters *graphstore.Filters, limit int) ([]graphstore.Triple, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	if filters == nil {
		filters = &graphstore.Filters{}
	}
	if limit <= 0 {
		limit = 100
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entities)), ",")
	where, args := scopeWhere(filters,
		fmt.Sprintf("(LOWER(source) IN (%s) OR LOWER(destination) IN (%s))", placeholders, placeholders))
	query := fmt.Sprintf(`
		SELECT source, source_type, relationship, destination, destination_type
		FROM %s %s
		ORDER BY created_at DESC
		LIMIT %d
	`, s.tableName, where, limit)

	for _, entity := range entities {
		args = append(args, strings.ToLower(entity))
	}
	for _, entity := range entities {
		args = append(args, strings.ToLower(entity))
	}

	return s.queryTriples(ctx, query, args...)
}

// GetAll returns all triples in scope, most recent first.
func (s *Store) GetAll(ctx context.Context, filters *graphstore.Filters, limit int) ([]graphstore.Triple, error) {
	if filters == nil {
		filters = &graphstore.Filters{}
	}
	if limit <= 0 {
		limit = 100
	}

	where, args := scopeWhere(filters)
	query := fmt.Sprintf(`
		SELECT source, source_type, relationship, destination, destination_type
		FROM %s %s
		ORDER BY created_at DESC
		LIMIT %d
	`, s.tableName, where, limit)

	return s.queryTriples(ctx, query, args...)
}

// DeleteAll removes every triple in scope.
func (s *Store) DeleteAll(ctx context.Context, filters *graphstore.Filters) error {
	if filters == nil {
		filters = &graphstore.Filters{}
	}

	where, args := scopeWhere(filters)
	query := fmt.Sprintf("DELETE FROM %s %s", s.tableName, where)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Reset drops all triples for every scope.
func (s *Store) Reset(ctx context.Context) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return s.initTables(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scopeConditions returns equality conditions for the scope fields
// that are set. Unset fields match any value, so a partial scope
// reaches triples written under a fuller one.
func scopeConditions(filters *graphstore.Filters) ([]string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if filters == nil {
		return conditions, args
	}

	if filters.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filters.RunID)
	}

	return conditions, args
}

// scopeWhere builds a WHERE clause from the scope conditions plus any
// extra conditions. The returned args cover the scope conditions only;
// callers append args for the extras themselves.
func scopeWhere(filters *graphstore.Filters, extra ...string) (string, []interface{}) {
	conditions, args := scopeConditions(filters)
	conditions = append(conditions, extra...)
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (s *Store) queryTriples(ctx context.Context, query string, args ...interface{}) ([]graphstore.Triple, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queryTriples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triples []graphstore.Triple
	for rows.Next() {
		var t graphstore.Triple
		var sourceType, destType sql.NullString
		if err := rows.Scan(&t.Source, &sourceType, &t.Relationship, &t.Destination, &destType); err != nil {
			return nil, fmt.Errorf("queryTriples: %w", err)
		}
		t.SourceType = sourceType.String
		t.DestinationType = destType.String
		triples = append(triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queryTriples: %w", err)
	}

	return triples, nil
}
