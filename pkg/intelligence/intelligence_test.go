package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/llm"
)

// fixedLLM returns the same response for every call.
type fixedLLM struct {
	response string
	err      error

	// lastMessages captures the most recent call for prompt checks.
	lastMessages []llm.Message
}

func (f *fixedLLM) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	f.lastMessages = []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	return f.response, f.err
}

func (f *fixedLLM) GenerateWithMessages(_ context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	f.lastMessages = messages
	return f.response, f.err
}

func (f *fixedLLM) Close() error { return nil }

func TestExtractParsesFacts(t *testing.T) {
	provider := &fixedLLM{response: `{"facts": ["Likes tea", "Lives in Porto"]}`}
	extractor := intelligence.NewFactExtractor(provider)

	facts, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "I like tea and live in Porto"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Likes tea", "Lives in Porto"}, facts)
}

func TestExtractToleratesCodeFences(t *testing.T) {
	provider := &fixedLLM{response: "```json\n{\"facts\": [\"Likes tea\"]}\n```"}
	extractor := intelligence.NewFactExtractor(provider)

	facts, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "I like tea"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Likes tea"}, facts)
}

func TestExtractOnlyConsidersUserMessages(t *testing.T) {
	provider := &fixedLLM{response: `{"facts": []}`}
	extractor := intelligence.NewFactExtractor(provider)

	// Nothing from the user: the provider must not even be called.
	facts, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful."},
		{Role: llm.RoleAssistant, Content: "I live in a datacenter."},
	})
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.Nil(t, provider.lastMessages)
}

func TestExtractRejectsMalformedJSON(t *testing.T) {
	provider := &fixedLLM{response: "sure, here are the facts:"}
	extractor := intelligence.NewFactExtractor(provider)

	_, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "I like tea"},
	})
	assert.Error(t, err)
}

func TestExtractPropagatesProviderError(t *testing.T) {
	provider := &fixedLLM{err: errors.New("rate limited")}
	extractor := intelligence.NewFactExtractor(provider)

	_, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "I like tea"},
	})
	assert.ErrorContains(t, err, "rate limited")
}

func TestExtractUsesCustomPrompt(t *testing.T) {
	provider := &fixedLLM{response: `{"facts": []}`}
	extractor := intelligence.NewFactExtractorWithPrompt(provider, "CUSTOM PROMPT")

	_, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, provider.lastMessages)
	assert.Equal(t, "CUSTOM PROMPT", provider.lastMessages[0].Content)
}

func TestDecideParsesAllEvents(t *testing.T) {
	provider := &fixedLLM{response: `{"memory": [
		{"id": "0", "text": "Likes green tea", "event": "UPDATE", "old_memory": "Likes tea"},
		{"text": "Plays chess", "event": "ADD"},
		{"id": "1", "event": "DELETE"},
		{"text": "Greeting", "event": "none"}
	]}`}
	maker := intelligence.NewDecisionMaker(provider)

	decisions, err := maker.Decide(context.Background(),
		[]string{"Likes green tea", "Plays chess"},
		[]intelligence.Candidate{{ID: "0", Text: "Likes tea"}, {ID: "1", Text: "Old fact"}},
	)
	require.NoError(t, err)
	require.Len(t, decisions, 4)

	assert.Equal(t, intelligence.EventUpdate, decisions[0].Event)
	assert.Equal(t, "0", decisions[0].ID)
	assert.Equal(t, "Likes tea", decisions[0].OldMemory)
	assert.Equal(t, intelligence.EventAdd, decisions[1].Event)
	assert.Equal(t, intelligence.EventDelete, decisions[2].Event)
	// Event casing is normalized.
	assert.Equal(t, intelligence.EventNone, decisions[3].Event)
}

func TestDecideAcceptsMemoryFieldAlias(t *testing.T) {
	provider := &fixedLLM{response: `{"memory": [{"memory": "Likes tea", "event": "ADD"}]}`}
	maker := intelligence.NewDecisionMaker(provider)

	decisions, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "Likes tea", decisions[0].Text)
}

func TestDecideWithNoFactsSkipsProvider(t *testing.T) {
	provider := &fixedLLM{response: "should not be called"}
	maker := intelligence.NewDecisionMaker(provider)

	decisions, err := maker.Decide(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Nil(t, provider.lastMessages)
}

func TestExtractTriplesNormalizesNames(t *testing.T) {
	provider := &fixedLLM{response: `{"relations": [
		{"source": "Maria Silva", "source_type": "person", "relationship": "Lives In", "destination": "Porto", "destination_type": "city"},
		{"source": "", "relationship": "likes", "destination": "tea"}
	]}`}
	extractor := intelligence.NewGraphExtractor(provider)

	triples, err := extractor.ExtractTriples(context.Background(), "Maria Silva lives in Porto", "alice")
	require.NoError(t, err)
	// The triple missing a source is dropped.
	require.Len(t, triples, 1)
	assert.Equal(t, "maria_silva", triples[0].Source)
	assert.Equal(t, "lives_in", triples[0].Relationship)
	assert.Equal(t, "porto", triples[0].Destination)
}

func TestExtractEntities(t *testing.T) {
	provider := &fixedLLM{response: `{"entities": [
		{"entity": "Maria", "entity_type": "person"},
		{"entity": "Porto", "entity_type": "city"}
	]}`}
	extractor := intelligence.NewGraphExtractor(provider)

	entities, err := extractor.ExtractEntities(context.Background(), "Where does Maria live?", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"maria", "porto"}, entities)
}

func TestSummarizeRejectsEmptyTranscript(t *testing.T) {
	provider := &fixedLLM{response: "summary"}
	summarizer := intelligence.NewProceduralSummarizer(provider)

	_, err := summarizer.Summarize(context.Background(), nil)
	assert.Error(t, err)
}

func TestSummarizeIncludesAssistantTurns(t *testing.T) {
	provider := &fixedLLM{response: "The agent booked a flight."}
	summarizer := intelligence.NewProceduralSummarizer(provider)

	summary, err := summarizer.Summarize(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "Book a flight"},
		{Role: llm.RoleAssistant, Content: "Booked LIS-NYC"},
	})
	require.NoError(t, err)
	assert.Equal(t, "The agent booked a flight.", summary)

	// The transcript handed to the model carries both turns.
	require.Len(t, provider.lastMessages, 2)
	assert.Contains(t, provider.lastMessages[1].Content, "Book a flight")
	assert.Contains(t, provider.lastMessages[1].Content, "Booked LIS-NYC")
}
