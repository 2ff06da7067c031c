package core

import (
	"time"

	"github.com/engram-ai/engram-go/pkg/graphstore"
)

// Memory change events, as recorded in Add results and the history
// ledger.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"
)

// MemoryTypeProcedural marks memories produced by procedural
// summarization of an agent's execution trace.
const MemoryTypeProcedural = "procedural_memory"

// MemoryItem is one stored memory as returned by reads and searches.
type MemoryItem struct {
	// ID is the memory's UUID.
	ID string `json:"id"`

	// Memory is the stored text.
	Memory string `json:"memory"`

	// Hash is the MD5 hash of the text, for change detection.
	Hash string `json:"hash,omitempty"`

	// Score is the similarity score, set on search results only.
	Score float32 `json:"score,omitempty"`

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the memory last changed, zero if never updated.
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// UserID, AgentID, and RunID are the memory's scope.
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// ActorID identifies who said the source message, if known.
	ActorID string `json:"actor_id,omitempty"`

	// Role is the conversational role the memory came from.
	Role string `json:"role,omitempty"`

	// Metadata holds caller-supplied key/value pairs.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddResultItem is the outcome for one candidate fact in an Add call.
type AddResultItem struct {
	// ID is the affected memory's UUID, empty for NONE and for
	// candidates that failed.
	ID string `json:"id,omitempty"`

	// Memory is the fact or memory text the event applies to.
	Memory string `json:"memory"`

	// Event is ADD, UPDATE, DELETE, or NONE.
	Event string `json:"event"`

	// PreviousMemory is the replaced text when Event is UPDATE.
	PreviousMemory string `json:"previous_memory,omitempty"`

	// Error is set when this candidate failed with a provider error
	// while others succeeded.
	Error string `json:"error,omitempty"`
}

// GraphResult reports graph store changes made during an Add call.
type GraphResult struct {
	Added   []graphstore.Triple `json:"added_entities,omitempty"`
	Deleted []graphstore.Triple `json:"deleted_entities,omitempty"`
}

// AddResult is the full outcome of an Add call.
type AddResult struct {
	// Results holds one entry per candidate fact.
	Results []AddResultItem `json:"results"`

	// Relations holds graph changes when the graph store is enabled.
	Relations *GraphResult `json:"relations,omitempty"`
}

// SearchResult is the outcome of a Search call.
type SearchResult struct {
	// Results are the matching memories, best first.
	Results []MemoryItem `json:"results"`

	// Relations are matching graph triples when the graph store is
	// enabled.
	Relations []graphstore.Triple `json:"relations,omitempty"`
}

// Message is one conversational turn passed to Add.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Name optionally identifies the speaker.
	Name string `json:"name,omitempty"`
}
