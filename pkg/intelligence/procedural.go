package intelligence

import (
	"context"
	"fmt"
	"strings"

	"github.com/engram-ai/engram-go/pkg/llm"
)

// ProceduralSummarizer condenses an agent's full interaction trace
// into one procedural memory: a structured summary of what the agent
// did, found, and still has pending. Unlike fact extraction, the whole
// transcript is considered, assistant turns included.
type ProceduralSummarizer struct {
	llm llm.Provider

	customPrompt string
}

// NewProceduralSummarizer creates a summarizer with the default prompt.
func NewProceduralSummarizer(provider llm.Provider) *ProceduralSummarizer {
	return &ProceduralSummarizer{llm: provider}
}

// NewProceduralSummarizerWithPrompt uses a caller-supplied system
// prompt instead of the default one.
func NewProceduralSummarizerWithPrompt(provider llm.Provider, customPrompt string) *ProceduralSummarizer {
	return &ProceduralSummarizer{llm: provider, customPrompt: customPrompt}
}

// Summarize produces the procedural summary text for the transcript.
func (p *ProceduralSummarizer) Summarize(ctx context.Context, messages []llm.Message) (string, error) {
	var parts []string
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	transcript := strings.Join(parts, "\n")
	if transcript == "" {
		return "", fmt.Errorf("procedural summary: empty transcript")
	}

	llmMessages := []llm.Message{
		{Role: llm.RoleSystem, Content: p.systemPrompt()},
		{Role: llm.RoleUser, Content: transcript},
	}

	summary, err := p.llm.GenerateWithMessages(ctx, llmMessages)
	if err != nil {
		return "", fmt.Errorf("procedural summary: %w", err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("procedural summary: model returned empty summary")
	}
	return summary, nil
}

func (p *ProceduralSummarizer) systemPrompt() string {
	if p.customPrompt != "" {
		return p.customPrompt
	}

	return `You are a memory summarization system for AI agents. Given an agent's execution history, produce a comprehensive summary that lets the agent resume work without the full transcript.

Include:
1. Overall task and current objective.
2. Steps taken so far, in order, with their outcomes.
3. Key results: data gathered, decisions made, artifacts produced. Quote important values verbatim.
4. Errors encountered and how they were handled.
5. What remains to be done.

Be precise and factual. Do not invent details that are not in the history. Write the summary as plain text.`
}
