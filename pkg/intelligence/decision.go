package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// Event values a decision can carry.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"
)

// Candidate is an existing memory offered to the model for comparison.
// The ID is a short positional index, not the real memory ID; callers
// map indexes back to real IDs after decisioning so a hallucinated ID
// can never address an unrelated memory.
type Candidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Decision is one action the model chose for a fact.
type Decision struct {
	// ID references a Candidate for UPDATE and DELETE, empty for ADD.
	ID string `json:"id"`

	// Text is the memory content to write. For NONE it echoes the
	// skipped fact.
	Text string `json:"text"`

	// Event is ADD, UPDATE, DELETE, or NONE.
	Event string `json:"event"`

	// OldMemory is the previous content when Event is UPDATE.
	OldMemory string `json:"old_memory,omitempty"`
}

// DecisionMaker reconciles new facts against similar existing
// memories and returns one decision per outcome.
type DecisionMaker struct {
	llm llm.Provider

	customPrompt string
}

// NewDecisionMaker creates a decision maker with the default prompt.
func NewDecisionMaker(provider llm.Provider) *DecisionMaker {
	return &DecisionMaker{llm: provider}
}

// NewDecisionMakerWithPrompt creates a decision maker with a
// caller-supplied prompt template. The template receives no
// substitutions; callers format it themselves.
func NewDecisionMakerWithPrompt(provider llm.Provider, customPrompt string) *DecisionMaker {
	return &DecisionMaker{llm: provider, customPrompt: customPrompt}
}

// Decide asks the model what to do with each fact given the candidate
// memories. Facts with no counterpart become ADD, corrections become
// UPDATE or DELETE against a candidate ID, duplicates become NONE.
func (d *DecisionMaker) Decide(ctx context.Context, facts []string, candidates []Candidate) ([]Decision, error) {
	if len(facts) == 0 {
		return []Decision{}, nil
	}

	prompt := d.buildPrompt(facts, candidates)

	response, err := d.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, llm.WithJSONResponse())
	if err != nil {
		return nil, fmt.Errorf("memory decision: %w", err)
	}

	decisions, err := parseDecisions(response)
	if err != nil {
		return nil, fmt.Errorf("memory decision: %w", err)
	}

	return decisions, nil
}

func (d *DecisionMaker) buildPrompt(facts []string, candidates []Candidate) string {
	if d.customPrompt != "" {
		return d.customPrompt
	}

	if candidates == nil {
		candidates = []Candidate{}
	}
	candidatesJSON, _ := json.Marshal(candidates)
	factsJSON, _ := json.Marshal(facts)

	return fmt.Sprintf(`You manage a user's long-term memory. Compare the new facts against the existing memories and choose one action per outcome.

# Existing Memories
%s

# New Facts
%s

# Actions
- ADD: the fact is new information with no counterpart among existing memories.
- UPDATE: the fact adds to or corrects an existing memory. Merge old and new into one complete statement.
- DELETE: an existing memory is contradicted or invalidated by a new fact.
- NONE: the fact is already captured, or is not worth storing.

# Guidelines
1. A fact that duplicates an existing memory is NONE, not ADD.
2. When updating, the merged text must stand on its own.
3. Keep all time references intact.
4. For UPDATE and DELETE, "id" must be one of the existing memory IDs exactly as given.

# Output
Return JSON with a "memory" array:

{
  "memory": [
    {"id": "0", "text": "Merged memory text", "event": "UPDATE", "old_memory": "Previous text"},
    {"text": "New memory text", "event": "ADD"},
    {"id": "2", "event": "DELETE"},
    {"text": "Duplicate fact", "event": "NONE"}
  ]
}

Respond with the JSON object and nothing else.`, string(candidatesJSON), string(factsJSON))
}

func parseDecisions(response string) ([]Decision, error) {
	response = stripCodeFences(response)

	var result struct {
		Memory []map[string]interface{} `json:"memory"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	decisions := make([]Decision, 0, len(result.Memory))
	for _, item := range result.Memory {
		var dec Decision
		if id, ok := item["id"].(string); ok {
			dec.ID = id
		}
		if text, ok := item["text"].(string); ok {
			dec.Text = text
		}
		// Some models answer with "memory" instead of "text".
		if dec.Text == "" {
			if text, ok := item["memory"].(string); ok {
				dec.Text = text
			}
		}
		if event, ok := item["event"].(string); ok {
			dec.Event = strings.ToUpper(strings.TrimSpace(event))
		}
		if old, ok := item["old_memory"].(string); ok {
			dec.OldMemory = old
		}
		decisions = append(decisions, dec)
	}

	return decisions, nil
}
