package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engram-ai/engram-go/pkg/graphstore"
	"github.com/engram-ai/engram-go/pkg/llm"
)

// GraphExtractor pulls entities and relationships out of text for the
// graph store. Entity names are lowercased and use underscores instead
// of spaces so the same entity always lands on the same node.
type GraphExtractor struct {
	llm llm.Provider
}

// NewGraphExtractor creates a graph extractor.
func NewGraphExtractor(provider llm.Provider) *GraphExtractor {
	return &GraphExtractor{llm: provider}
}

// ExtractEntities returns the entity names mentioned in the text.
// References to the speaker are resolved to the given identity.
func (g *GraphExtractor) ExtractEntities(ctx context.Context, text, identity string) ([]string, error) {
	prompt := fmt.Sprintf(`List every entity mentioned in the text below. An entity is a person, place, organization, object, event, or concept. Treat any self-reference ("I", "me", "my") as the entity %q.

Normalize names: lowercase, underscores instead of spaces.

Return JSON: {"entities": [{"entity": "name", "entity_type": "type"}]}

Text:
%s`, identity, text)

	response, err := g.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, llm.WithJSONResponse())
	if err != nil {
		return nil, fmt.Errorf("entity extraction: %w", err)
	}

	response = stripCodeFences(response)
	var result struct {
		Entities []struct {
			Entity string `json:"entity"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("entity extraction: invalid JSON response: %w", err)
	}

	names := make([]string, 0, len(result.Entities))
	for _, e := range result.Entities {
		if name := normalizeEntity(e.Entity); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// ExtractTriples converts text into source-relationship-destination
// triples. The speaker identity anchors first-person statements.
func (g *GraphExtractor) ExtractTriples(ctx context.Context, text, identity string) ([]graphstore.Triple, error) {
	prompt := fmt.Sprintf(`Extract relationships from the text below as triples. Use %q as the source for any first-person statement.

Rules:
- Entity names: lowercase, underscores instead of spaces.
- Relationship names: lowercase, underscores, present tense (likes, works_at, lives_in).
- Only state relationships the text supports.

Return JSON: {"relations": [{"source": "...", "source_type": "...", "relationship": "...", "destination": "...", "destination_type": "..."}]}

Text:
%s`, identity, text)

	response, err := g.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, llm.WithJSONResponse())
	if err != nil {
		return nil, fmt.Errorf("triple extraction: %w", err)
	}

	response = stripCodeFences(response)
	var result struct {
		Relations []struct {
			Source          string `json:"source"`
			SourceType      string `json:"source_type"`
			Relationship    string `json:"relationship"`
			Destination     string `json:"destination"`
			DestinationType string `json:"destination_type"`
		} `json:"relations"`
	}
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("triple extraction: invalid JSON response: %w", err)
	}

	triples := make([]graphstore.Triple, 0, len(result.Relations))
	for _, r := range result.Relations {
		t := graphstore.Triple{
			Source:          normalizeEntity(r.Source),
			SourceType:      r.SourceType,
			Relationship:    normalizeEntity(r.Relationship),
			Destination:     normalizeEntity(r.Destination),
			DestinationType: r.DestinationType,
		}
		if t.Source == "" || t.Relationship == "" || t.Destination == "" {
			continue
		}
		triples = append(triples, t)
	}
	return triples, nil
}

func normalizeEntity(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}
