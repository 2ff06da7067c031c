package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/engram-ai/engram-go/pkg/graphstore"
	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/llm"
	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// Add ingests conversation messages into memory.
//
// By default the messages go through the full pipeline: fact
// extraction, similarity search against existing memories, and an
// LLM decision of ADD, UPDATE, DELETE, or NONE per outcome. Each
// mutation is mirrored in the history ledger, and in the entity graph
// when one is configured.
//
// With WithInfer(false) each user-role message is stored verbatim.
// With WithMemoryType(MemoryTypeProcedural) the whole transcript is
// summarized into a single memory instead.
//
// At least one of WithUserID, WithAgentID, WithRunID is required.
func (c *Client) Add(ctx context.Context, messages []Message, opts ...AddOption) (*AddResult, error) {
	options := newAddOptions(opts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "Add", ErrClosed)
	}

	if !hasScope(options.UserID, options.AgentID, options.RunID) {
		return nil, NewError(KindInvalidScope, "Add", ErrNoScope)
	}
	if len(messages) == 0 {
		return nil, NewError(KindInvalidArgument, "Add", fmt.Errorf("%w: messages", ErrEmptyContent))
	}

	if options.MemoryType != "" {
		if options.MemoryType != MemoryTypeProcedural {
			return nil, NewError(KindInvalidArgument, "Add", fmt.Errorf("unknown memory type %q", options.MemoryType))
		}
		if options.AgentID == "" {
			return nil, NewError(KindInvalidArgument, "Add", fmt.Errorf("procedural memory requires an agent id"))
		}
		return c.addProcedural(ctx, messages, options)
	}
	if !options.Infer {
		return c.addDirect(ctx, messages, options)
	}
	return c.addInferred(ctx, messages, options)
}

// addDirect stores each user message verbatim, one ADD per message,
// without any LLM involvement.
func (c *Client) addDirect(ctx context.Context, messages []Message, options *AddOptions) (*AddResult, error) {
	result := &AddResult{Results: []AddResultItem{}}

	for _, msg := range messages {
		if msg.Role != llm.RoleUser || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		vector, err := c.embedder.Embed(ctx, msg.Content)
		if err != nil {
			// Provider failures disqualify this message only; messages
			// already stored stay reported, later ones still run.
			result.Results = append(result.Results, AddResultItem{
				Memory: msg.Content,
				Event:  EventNone,
				Error:  err.Error(),
			})
			continue
		}

		actor := msg.Name
		if actor == "" {
			actor = options.ActorID
		}

		memoryID, err := c.writeMemory(ctx, msg.Content, vector, options, actor, msg.Role)
		if err != nil {
			return nil, err
		}

		result.Results = append(result.Results, AddResultItem{
			ID:     memoryID,
			Memory: msg.Content,
			Event:  EventAdd,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"user_id": options.UserID,
		"added":   len(result.Results),
		"infer":   false,
	}).Debug("direct add complete")
	return result, nil
}

// addProcedural summarizes the transcript into one memory.
func (c *Client) addProcedural(ctx context.Context, messages []Message, options *AddOptions) (*AddResult, error) {
	var summarizer *intelligence.ProceduralSummarizer
	if options.Prompt != "" {
		summarizer = intelligence.NewProceduralSummarizerWithPrompt(c.llm, options.Prompt)
	} else {
		summarizer = c.summarizer
	}

	summary, err := summarizer.Summarize(ctx, toLLMMessages(messages))
	if err != nil {
		return nil, NewError(KindProvider, "Add", err)
	}

	vector, err := c.embedder.Embed(ctx, summary)
	if err != nil {
		return nil, NewError(KindProvider, "Add", err)
	}

	if options.Metadata == nil {
		options.Metadata = map[string]interface{}{}
	}
	options.Metadata["memory_type"] = MemoryTypeProcedural

	memoryID, err := c.writeMemory(ctx, summary, vector, options, options.ActorID, llm.RoleAssistant)
	if err != nil {
		return nil, err
	}

	return &AddResult{Results: []AddResultItem{{
		ID:     memoryID,
		Memory: summary,
		Event:  EventAdd,
	}}}, nil
}

// factCandidates is the embed-and-search outcome for one fact.
type factCandidates struct {
	fact    string
	vector  []float32
	matches []*vectorstore.Point
	err     error
}

// addInferred runs the full extraction and decision pipeline.
func (c *Client) addInferred(ctx context.Context, messages []Message, options *AddOptions) (*AddResult, error) {
	var extractor *intelligence.FactExtractor
	if options.Prompt != "" {
		extractor = intelligence.NewFactExtractorWithPrompt(c.llm, options.Prompt)
	} else {
		extractor = c.extractor
	}

	facts, err := extractor.Extract(ctx, toLLMMessages(messages))
	if err != nil {
		return nil, NewError(KindProvider, "Add", err)
	}
	if len(facts) == 0 {
		c.logger.Debug("no facts extracted, nothing to add")
		return &AddResult{Results: []AddResultItem{}}, nil
	}

	filters := vectorstore.Filters{
		UserID:  options.UserID,
		AgentID: options.AgentID,
		RunID:   options.RunID,
	}

	// Embed each fact and retrieve its nearest existing memories.
	// Provider failures here only disqualify the affected fact.
	candidates := make([]factCandidates, len(facts))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.config.parallelism())
	for i, fact := range facts {
		i, fact := i, fact
		group.Go(func() error {
			vector, err := c.embedder.Embed(groupCtx, fact)
			if err != nil {
				candidates[i] = factCandidates{fact: fact, err: err}
				return nil
			}
			matches, err := c.store.Search(groupCtx, vector, &vectorstore.SearchOptions{
				Limit:   c.config.searchK(),
				Filters: filters,
			})
			if err != nil {
				// Backend failures abort the whole call.
				return err
			}
			candidates[i] = factCandidates{fact: fact, vector: vector, matches: matches}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, NewError(KindBackend, "Add", err)
	}

	result := &AddResult{Results: []AddResultItem{}}

	// Temporary positional IDs shield real memory IDs from the model:
	// a hallucinated ID falls outside the map and is ignored instead
	// of addressing an unrelated memory.
	var (
		okFacts     []string
		vectors     = map[string][]float32{}
		tempToReal  = map[string]string{}
		existing    []intelligence.Candidate
		seenRealIDs = map[string]bool{}
	)
	for _, cand := range candidates {
		if cand.err != nil {
			result.Results = append(result.Results, AddResultItem{
				Memory: cand.fact,
				Event:  EventNone,
				Error:  cand.err.Error(),
			})
			continue
		}
		okFacts = append(okFacts, cand.fact)
		vectors[cand.fact] = cand.vector
		for _, match := range cand.matches {
			if seenRealIDs[match.ID] {
				continue
			}
			seenRealIDs[match.ID] = true
			tempID := strconv.Itoa(len(existing))
			tempToReal[tempID] = match.ID
			existing = append(existing, intelligence.Candidate{ID: tempID, Text: match.Payload.Text})
		}
	}

	if len(okFacts) == 0 {
		return result, nil
	}

	decisions, err := c.decider.Decide(ctx, okFacts, existing)
	if err != nil {
		return nil, NewError(KindProvider, "Add", err)
	}

	// Decisions apply sequentially in model order, last write wins.
	for _, decision := range decisions {
		item, err := c.applyDecision(ctx, decision, vectors, tempToReal, options)
		if err != nil {
			return nil, err
		}
		if item != nil {
			result.Results = append(result.Results, *item)
		}
	}

	if c.graph != nil && c.graphExt != nil {
		relations, err := c.updateGraph(ctx, messages, options)
		switch {
		case err != nil && KindOf(err) == KindBackend:
			// A failed graph write leaves the stores disagreeing about
			// this call, so the caller has to see it.
			return nil, err
		case err != nil:
			c.logger.WithError(err).Warn("graph extraction failed, vector results unaffected")
		default:
			result.Relations = relations
		}
	}

	c.logger.WithFields(logrus.Fields{
		"user_id": options.UserID,
		"facts":   len(facts),
		"events":  len(result.Results),
	}).Debug("inferred add complete")
	return result, nil
}

func (c *Client) applyDecision(ctx context.Context, decision intelligence.Decision, vectors map[string][]float32, tempToReal map[string]string, options *AddOptions) (*AddResultItem, error) {
	switch decision.Event {
	case intelligence.EventAdd:
		if strings.TrimSpace(decision.Text) == "" {
			return nil, nil
		}
		vector, ok := vectors[decision.Text]
		if !ok {
			var err error
			vector, err = c.embedder.Embed(ctx, decision.Text)
			if err != nil {
				return &AddResultItem{Memory: decision.Text, Event: EventNone, Error: err.Error()}, nil
			}
		}
		memoryID, err := c.writeMemory(ctx, decision.Text, vector, options, options.ActorID, llm.RoleUser)
		if err != nil {
			return nil, err
		}
		return &AddResultItem{ID: memoryID, Memory: decision.Text, Event: EventAdd}, nil

	case intelligence.EventUpdate:
		realID, ok := tempToReal[decision.ID]
		if !ok {
			c.logger.WithField("id", decision.ID).Warn("decision referenced unknown memory id, skipping")
			return nil, nil
		}
		if strings.TrimSpace(decision.Text) == "" {
			return nil, nil
		}

		point, err := c.store.Get(ctx, realID)
		if err != nil {
			return nil, NewError(KindBackend, "Add", err)
		}
		if point == nil {
			return nil, nil
		}

		vector, ok := vectors[decision.Text]
		if !ok {
			vector, err = c.embedder.Embed(ctx, decision.Text)
			if err != nil {
				return &AddResultItem{ID: realID, Memory: decision.Text, Event: EventNone, Error: err.Error()}, nil
			}
		}

		prev := point.Payload.Text
		now := time.Now().UTC()
		payload := point.Payload
		payload.Text = decision.Text
		payload.Hash = md5Hash(decision.Text)
		payload.UpdatedAt = now

		if err := c.store.Update(ctx, realID, vector, &payload); err != nil {
			return nil, NewError(KindBackend, "Add", err)
		}
		if err := c.appendHistory(ctx, realID, &prev, &decision.Text, EventUpdate, payload.CreatedAt, now, options.ActorID, llm.RoleUser, false); err != nil {
			return nil, err
		}
		return &AddResultItem{ID: realID, Memory: decision.Text, Event: EventUpdate, PreviousMemory: prev}, nil

	case intelligence.EventDelete:
		realID, ok := tempToReal[decision.ID]
		if !ok {
			c.logger.WithField("id", decision.ID).Warn("decision referenced unknown memory id, skipping")
			return nil, nil
		}

		point, err := c.store.Get(ctx, realID)
		if err != nil {
			return nil, NewError(KindBackend, "Add", err)
		}
		if point == nil {
			return nil, nil
		}

		if err := c.store.Delete(ctx, realID); err != nil {
			return nil, NewError(KindBackend, "Add", err)
		}
		prev := point.Payload.Text
		if err := c.appendHistory(ctx, realID, &prev, nil, EventDelete, point.Payload.CreatedAt, time.Now().UTC(), options.ActorID, llm.RoleUser, true); err != nil {
			return nil, err
		}
		return &AddResultItem{ID: realID, Memory: prev, Event: EventDelete}, nil

	case intelligence.EventNone:
		return &AddResultItem{Memory: decision.Text, Event: EventNone}, nil

	default:
		c.logger.WithField("event", decision.Event).Warn("unknown decision event, skipping")
		return nil, nil
	}
}

// writeMemory inserts a new memory point and its ADD ledger record.
func (c *Client) writeMemory(ctx context.Context, text string, vector []float32, options *AddOptions, actorID, role string) (string, error) {
	memoryID := uuid.NewString()
	now := time.Now().UTC()

	metadata := make(map[string]interface{}, len(options.Metadata)+2)
	for k, v := range options.Metadata {
		metadata[k] = v
	}
	if actorID != "" {
		metadata["actor_id"] = actorID
	}
	if role != "" {
		metadata["role"] = role
	}

	point := vectorstore.Point{
		ID:     memoryID,
		Vector: vector,
		Payload: vectorstore.Payload{
			UserID:    options.UserID,
			AgentID:   options.AgentID,
			RunID:     options.RunID,
			Text:      text,
			Hash:      md5Hash(text),
			Metadata:  metadata,
			CreatedAt: now,
		},
	}

	if err := c.store.Insert(ctx, []vectorstore.Point{point}); err != nil {
		return "", NewError(KindBackend, "Add", err)
	}
	if err := c.appendHistory(ctx, memoryID, nil, &text, EventAdd, now, now, actorID, role, false); err != nil {
		return "", err
	}
	return memoryID, nil
}

// updateGraph extracts triples from the conversation and upserts them.
// Extraction errors come back unwrapped; a failed upsert is a
// KindBackend error.
func (c *Client) updateGraph(ctx context.Context, messages []Message, options *AddOptions) (*GraphResult, error) {
	var parts []string
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem || msg.Content == "" {
			continue
		}
		parts = append(parts, msg.Content)
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		return nil, nil
	}

	triples, err := c.graphExt.ExtractTriples(ctx, text, graphIdentity(options.UserID, options.AgentID))
	if err != nil {
		return nil, err
	}
	if len(triples) == 0 {
		return nil, nil
	}

	upsert, err := c.graph.Upsert(ctx, triples, &graphstore.Filters{
		UserID:  options.UserID,
		AgentID: options.AgentID,
		RunID:   options.RunID,
	})
	if err != nil {
		return nil, NewError(KindBackend, "Add", err)
	}

	return &GraphResult{Added: upsert.Added, Deleted: upsert.Deleted}, nil
}

func toLLMMessages(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}
