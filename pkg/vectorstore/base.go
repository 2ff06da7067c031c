// Package vectorstore provides interfaces and types for vector index backends.
//
// It defines the Store interface that all backends must satisfy, along with
// the point/payload types the orchestrator persists. Backends do NOT enforce
// tenant isolation; every query the orchestrator issues carries scope
// filters on payload fields, and leakage prevention is the orchestrator's
// responsibility.
package vectorstore

import (
	"context"
	"time"
)

// Payload is the metadata stored alongside a vector.
//
// Scope fields (UserID, AgentID, RunID) are written at insert time and are
// immutable for the lifetime of the point.
type Payload struct {
	// UserID identifies the user who owns this memory.
	UserID string

	// AgentID identifies the agent associated with this memory.
	AgentID string

	// RunID identifies the run/session associated with this memory.
	RunID string

	// Text is the memory text content.
	Text string

	// Hash is the md5 hex digest of Text.
	Hash string

	// Metadata contains caller-supplied structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the point was created.
	CreatedAt time.Time

	// UpdatedAt is when the point was last updated (zero until first update).
	UpdatedAt time.Time
}

// Point is one vector plus payload, keyed by ID.
type Point struct {
	// ID is the unique point identifier (the memory id).
	ID string

	// Vector is the dense embedding.
	Vector []float32

	// Payload is the stored metadata.
	Payload Payload

	// Score is the similarity score from search operations (0.0-1.0 for
	// cosine). Only populated on search results.
	Score float32
}

// Filters restricts operations to points whose payload matches every set field.
type Filters struct {
	// UserID filters to a specific user.
	UserID string

	// AgentID filters to a specific agent.
	AgentID string

	// RunID filters to a specific run.
	RunID string

	// Metadata filters on exact-match payload metadata values.
	Metadata map[string]interface{}
}

// Empty reports whether no filter field is set.
func (f *Filters) Empty() bool {
	return f == nil || (f.UserID == "" && f.AgentID == "" && f.RunID == "" && len(f.Metadata) == 0)
}

// SearchOptions contains options for similarity search.
type SearchOptions struct {
	// Limit is the maximum number of matches to return.
	Limit int

	// Filters restricts the candidate set. The orchestrator always sets
	// at least one scope field here.
	Filters Filters
}

// ListOptions contains options for listing points without a query vector.
type ListOptions struct {
	// Limit is the maximum number of points to return.
	Limit int

	// Filters restricts the result set.
	Filters Filters
}

// Store defines the interface for vector index backends.
//
// All backends (SQLite, Postgres/pgvector, chromem) must implement this interface.
type Store interface {
	// Insert upserts points by ID.
	Insert(ctx context.Context, points []Point) error

	// Search performs kNN similarity search, returning matches ordered
	// descending by similarity.
	Search(ctx context.Context, vector []float32, opts *SearchOptions) ([]*Point, error)

	// Get retrieves a point by ID. A missing ID yields a nil point and nil error.
	Get(ctx context.Context, id string) (*Point, error)

	// Update replaces the vector and/or payload of an existing point.
	// A nil vector keeps the stored vector; a nil payload keeps the stored payload.
	Update(ctx context.Context, id string, vector []float32, payload *Payload) error

	// Delete removes a point by ID.
	Delete(ctx context.Context, id string) error

	// List returns points matching the filters, most recently created first.
	List(ctx context.Context, opts *ListOptions) ([]*Point, error)

	// DeleteAll removes every point matching the filters.
	DeleteAll(ctx context.Context, filters *Filters) error

	// Reset drops and recreates the collection. Destructive.
	Reset(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
