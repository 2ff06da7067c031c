// Package history provides the append-only change ledger for memories.
//
// Every mutation of a memory (ADD, UPDATE, DELETE) appends one record;
// records are never modified after the fact. DELETE records carry a
// tombstone flag so a memory's full lifecycle can be replayed.
package history

import (
	"context"
	"time"
)

// Record is one entry in the change ledger.
type Record struct {
	// ID is a unique, time-ordered identifier for the record.
	ID int64 `json:"id"`

	// MemoryID is the ID of the memory this record describes.
	MemoryID string `json:"memory_id"`

	// PrevValue is the memory text before the change, nil for ADD.
	PrevValue *string `json:"prev_value,omitempty"`

	// NewValue is the memory text after the change, nil for DELETE.
	NewValue *string `json:"new_value,omitempty"`

	// Event is the change type: "ADD", "UPDATE", or "DELETE".
	Event string `json:"event"`

	// CreatedAt is when the memory was originally created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this change happened.
	UpdatedAt time.Time `json:"updated_at"`

	// ActorID identifies who produced the source message, if known.
	ActorID string `json:"actor_id,omitempty"`

	// Role is the conversational role of the actor, if known.
	Role string `json:"role,omitempty"`

	// IsDeleted marks the tombstone record written on DELETE.
	IsDeleted bool `json:"is_deleted"`
}

// Ledger is an append-only store of memory change records.
type Ledger interface {
	// Append writes one record to the ledger. The record's ID is
	// assigned by the ledger and set on the passed record.
	Append(ctx context.Context, record *Record) error

	// List returns all records for a memory in chronological order.
	List(ctx context.Context, memoryID string) ([]Record, error)

	// Reset removes all records for every memory.
	Reset(ctx context.Context) error

	// Close releases ledger resources.
	Close() error
}
