// Package intelligence contains the LLM-driven reasoning steps of the
// memory pipeline: fact extraction, memory decisioning, graph entity
// and relation extraction, and procedural summarization.
package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// FactExtractor distills conversation messages into candidate facts.
//
// A fact is a short, self-contained statement about the user that is
// worth remembering: preferences, personal details, plans, intentions,
// and activities. Greetings and small talk yield no facts.
//
// Example usage:
//
//	extractor := NewFactExtractor(provider)
//	facts, err := extractor.Extract(ctx, messages)
type FactExtractor struct {
	llm llm.Provider

	// customPrompt replaces the default system prompt when non-empty.
	customPrompt string
}

// NewFactExtractor creates a fact extractor with the default prompt.
func NewFactExtractor(provider llm.Provider) *FactExtractor {
	return &FactExtractor{llm: provider}
}

// NewFactExtractorWithPrompt creates a fact extractor that uses a
// caller-supplied system prompt instead of the default one.
func NewFactExtractorWithPrompt(provider llm.Provider, customPrompt string) *FactExtractor {
	return &FactExtractor{llm: provider, customPrompt: customPrompt}
}

// Extract runs the extraction prompt over the messages and returns the
// facts the model found. Only user messages are considered; system and
// assistant turns supply no candidate facts.
//
// An empty result is not an error: trivial input legitimately produces
// zero facts.
func (e *FactExtractor) Extract(ctx context.Context, messages []llm.Message) ([]string, error) {
	conversation := renderConversation(messages)
	if conversation == "" {
		return []string{}, nil
	}

	llmMessages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt()},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Input:\n%s", conversation)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, llmMessages, llm.WithJSONResponse())
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	facts, err := parseFacts(response)
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	return facts, nil
}

// renderConversation flattens messages into "role: content" lines,
// skipping system turns and anything but user input.
func renderConversation(messages []llm.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role != llm.RoleUser || msg.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(parts, "\n")
}

func (e *FactExtractor) systemPrompt() string {
	if e.customPrompt != "" {
		return e.customPrompt
	}

	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are a Personal Information Organizer. Your job is to extract relevant facts, preferences, plans, and needs from a conversation and return them as distinct, self-contained statements.

What to extract: personal preferences, personal details (names, relationships, important dates), plans and intentions, needs and requests, activities, health information, professional details.

Rules:
1. Keep time references. "Went to Lisbon last spring" is a better fact than "Went to Lisbon". Preserve relative references ("yesterday", "last week") as written.
2. Each fact must stand on its own, with the who/what/when/where that the conversation provides.
3. Split unrelated information into separate facts, especially when the pieces have different time frames.
4. Always extract intentions and requests, even without time information.
5. Return nothing for greetings and small talk.
6. Answer in the language of the input.

Examples:
Input: Hello there!
Output: {"facts": []}

Input: I'm Nadia, I work as a data engineer in Berlin.
Output: {"facts": ["Name is Nadia", "Works as a data engineer", "Lives in Berlin"]}

Input: Last month I started climbing. I go to the gym every Tuesday now.
Output: {"facts": ["Started climbing last month", "Goes to the climbing gym every Tuesday"]}

Input: I need to renew my passport before the trip.
Output: {"facts": ["Needs to renew passport before the trip"]}

Today's date is %s. Respond with JSON of the form {"facts": ["..."]} and nothing else.

Extract facts from the conversation below:`, today)
}

// parseFacts decodes a {"facts": [...]} response, tolerating fenced
// code blocks around the JSON.
func parseFacts(response string) ([]string, error) {
	response = stripCodeFences(response)

	var result struct {
		Facts []interface{} `json:"facts"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	facts := make([]string, 0, len(result.Facts))
	for _, f := range result.Facts {
		if s, ok := f.(string); ok && s != "" {
			facts = append(facts, s)
		}
	}
	return facts, nil
}

// stripCodeFences removes markdown code fences some models wrap JSON in.
func stripCodeFences(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
