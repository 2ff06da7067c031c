// Package graphstore provides interfaces and types for relationship graph
// backends.
//
// A graph store persists entity-relationship triples scoped to an identity
// tuple. Triple extraction from text is NOT part of this package; the
// orchestrator extracts triples through the language model and hands the
// store finished triples.
package graphstore

import "context"

// Triple is one directed relationship edge.
//
// Identity is the (scope, source, relationship, destination) tuple itself;
// there is no separate id.
type Triple struct {
	// Source is the subject entity name.
	Source string `json:"source"`

	// SourceType is an optional type tag for the source entity.
	SourceType string `json:"source_type,omitempty"`

	// Relationship is the edge label.
	Relationship string `json:"relationship"`

	// Destination is the object entity name.
	Destination string `json:"destination"`

	// DestinationType is an optional type tag for the destination entity.
	DestinationType string `json:"destination_type,omitempty"`
}

// Filters restricts operations to triples owned by a scope.
type Filters struct {
	// UserID filters to a specific user.
	UserID string

	// AgentID filters to a specific agent.
	AgentID string

	// RunID filters to a specific run.
	RunID string
}

// UpsertResult reports the effect of an Upsert call.
type UpsertResult struct {
	// Added lists triples newly stored.
	Added []Triple `json:"added"`

	// Deleted lists triples removed because a new triple with the same
	// source and relationship overwrote them.
	Deleted []Triple `json:"deleted"`
}

// Store defines the interface for graph backends.
type Store interface {
	// Upsert stores triples under the given scope. A triple conflicting
	// with an existing one on (source, relationship) but with a different
	// destination overwrites it; the overwritten triple is reported as
	// deleted. An exact duplicate is a no-op.
	Upsert(ctx context.Context, triples []Triple, filters *Filters) (*UpsertResult, error)

	// Search returns triples in scope whose source or destination matches
	// any of the given entity names.
	Search(ctx context.Context, entities []string, filters *Filters, limit int) ([]Triple, error)

	// GetAll returns all triples in scope.
	GetAll(ctx context.Context, filters *Filters, limit int) ([]Triple, error)

	// DeleteAll removes every triple in scope.
	DeleteAll(ctx context.Context, filters *Filters) error

	// Reset drops all triples for every scope. Destructive.
	Reset(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
