package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/engram-ai/engram-go/pkg/embedder"
	embeddermock "github.com/engram-ai/engram-go/pkg/embedder/mock"
	embedderopenai "github.com/engram-ai/engram-go/pkg/embedder/openai"
	"github.com/engram-ai/engram-go/pkg/graphstore"
	graphsqlite "github.com/engram-ai/engram-go/pkg/graphstore/sqlite"
	"github.com/engram-ai/engram-go/pkg/history"
	"github.com/engram-ai/engram-go/pkg/intelligence"
	"github.com/engram-ai/engram-go/pkg/llm"
	llmanthropic "github.com/engram-ai/engram-go/pkg/llm/anthropic"
	llmollama "github.com/engram-ai/engram-go/pkg/llm/ollama"
	llmopenai "github.com/engram-ai/engram-go/pkg/llm/openai"
	"github.com/engram-ai/engram-go/pkg/vectorstore"
	vschromem "github.com/engram-ai/engram-go/pkg/vectorstore/chromem"
	vspostgres "github.com/engram-ai/engram-go/pkg/vectorstore/postgres"
	vssqlite "github.com/engram-ai/engram-go/pkg/vectorstore/sqlite"
)

// Client is the memory engine. It orchestrates the LLM pipeline, the
// vector index, the optional entity graph, and the change ledger.
//
// A Client is safe for concurrent use.
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, err := core.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	result, err := client.Add(ctx, messages, core.WithUserID("alice"))
type Client struct {
	config *Config

	llm      llm.Provider
	embedder embedder.Provider
	store    vectorstore.Store
	graph    graphstore.Store
	ledger   history.Ledger

	extractor  *intelligence.FactExtractor
	decider    *intelligence.DecisionMaker
	graphExt   *intelligence.GraphExtractor
	summarizer *intelligence.ProceduralSummarizer

	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
}

// Providers lets callers supply their own provider or backend
// implementations. Any nil field is built from the Config instead.
type Providers struct {
	LLM         llm.Provider
	Embedder    embedder.Provider
	VectorStore vectorstore.Store
	GraphStore  graphstore.Store
	History     history.Ledger
}

// NewClient builds a Client from the configuration.
func NewClient(config *Config) (*Client, error) {
	return NewClientWithProviders(config, Providers{})
}

// NewClientWithProviders builds a Client, using the given providers
// where set and the configuration for the rest. This is the seam for
// plugging in custom LLMs, embedders, or storage backends.
func NewClientWithProviders(config *Config, providers Providers) (*Client, error) {
	if config == nil {
		return nil, NewError(KindInvalidArgument, "NewClient", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llmProvider := providers.LLM
	if llmProvider == nil {
		var err error
		llmProvider, err = newLLMProvider(&config.LLM)
		if err != nil {
			return nil, NewError(KindInvalidArgument, "NewClient", err)
		}
	}

	embedderProvider := providers.Embedder
	if embedderProvider == nil {
		var err error
		embedderProvider, err = newEmbedderProvider(&config.Embedder)
		if err != nil {
			return nil, NewError(KindInvalidArgument, "NewClient", err)
		}
	}

	store := providers.VectorStore
	if store == nil {
		var err error
		store, err = newVectorStore(&config.VectorStore, embedderProvider.Dimensions())
		if err != nil {
			return nil, NewError(KindBackend, "NewClient", err)
		}
	}

	graph := providers.GraphStore
	if graph == nil && config.GraphStore != nil {
		var err error
		graph, err = newGraphStore(config.GraphStore)
		if err != nil {
			return nil, NewError(KindBackend, "NewClient", err)
		}
	}

	ledger := providers.History
	if ledger == nil {
		var err error
		ledger, err = newLedger(config)
		if err != nil {
			return nil, NewError(KindBackend, "NewClient", err)
		}
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	client := &Client{
		config:     config,
		llm:        llmProvider,
		embedder:   embedderProvider,
		store:      store,
		graph:      graph,
		ledger:     ledger,
		summarizer: intelligence.NewProceduralSummarizer(llmProvider),
		logger:     logger,
	}

	if config.CustomFactPrompt != "" {
		client.extractor = intelligence.NewFactExtractorWithPrompt(llmProvider, config.CustomFactPrompt)
	} else {
		client.extractor = intelligence.NewFactExtractor(llmProvider)
	}
	if config.CustomUpdatePrompt != "" {
		client.decider = intelligence.NewDecisionMakerWithPrompt(llmProvider, config.CustomUpdatePrompt)
	} else {
		client.decider = intelligence.NewDecisionMaker(llmProvider)
	}
	if graph != nil {
		client.graphExt = intelligence.NewGraphExtractor(llmProvider)
	}

	return client, nil
}

func newLLMProvider(cfg *LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return llmopenai.NewClient(&llmopenai.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		return llmanthropic.NewClient(&llmanthropic.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return llmollama.NewClient(&llmollama.Config{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

func newEmbedderProvider(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedderopenai.NewClient(&embedderopenai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "mock":
		return embeddermock.New(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %q", cfg.Provider)
	}
}

func newVectorStore(cfg *VectorStoreConfig, dims int) (vectorstore.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return vssqlite.NewClient(&vssqlite.Config{
			DBPath:             cfg.DBPath,
			CollectionName:     cfg.CollectionName,
			EmbeddingModelDims: dims,
		})
	case "postgres":
		return vspostgres.NewClient(&vspostgres.Config{
			DSN:                cfg.DSN,
			CollectionName:     cfg.CollectionName,
			EmbeddingModelDims: dims,
		})
	case "chromem":
		return vschromem.NewClient(&vschromem.Config{
			CollectionName: cfg.CollectionName,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %q", cfg.Provider)
	}
}

func newGraphStore(cfg *GraphStoreConfig) (graphstore.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		path := cfg.DBPath
		if path == "" {
			path = "./engram_graph.db"
		}
		return graphsqlite.NewStore(&graphsqlite.Config{DBPath: path})
	default:
		return nil, fmt.Errorf("unsupported graph store provider: %q", cfg.Provider)
	}
}

func newLedger(config *Config) (history.Ledger, error) {
	if config.History != nil {
		return history.NewSQLLedger(&history.SQLConfig{
			Driver: config.History.Driver,
			DSN:    config.History.DSN,
		})
	}

	// Default: SQLite file derived from the vector store path.
	path := "./engram_history.db"
	if config.VectorStore.DBPath != "" {
		path = strings.TrimSuffix(config.VectorStore.DBPath, ".db") + "_history.db"
	}
	return history.NewSQLLedger(&history.SQLConfig{
		Driver: history.DriverSQLite,
		DSN:    path,
	})
}

// Get retrieves a memory by ID.
func (c *Client) Get(ctx context.Context, memoryID string) (*MemoryItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "Get", ErrClosed)
	}

	point, err := c.store.Get(ctx, memoryID)
	if err != nil {
		return nil, NewError(KindBackend, "Get", err)
	}
	if point == nil {
		return nil, NewError(KindNotFound, "Get", fmt.Errorf("%w: %s", ErrMemoryNotFound, memoryID))
	}

	item := pointToItem(point)
	return &item, nil
}

// GetAll lists memories in scope, most recently created first.
func (c *Client) GetAll(ctx context.Context, opts ...GetAllOption) ([]MemoryItem, error) {
	options := newGetAllOptions(opts...)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "GetAll", ErrClosed)
	}

	if !hasScope(options.UserID, options.AgentID, options.RunID) {
		return nil, NewError(KindInvalidScope, "GetAll", ErrNoScope)
	}
	limit, err := resolveLimit(options.Limit, "GetAll")
	if err != nil {
		return nil, err
	}

	points, err := c.store.List(ctx, &vectorstore.ListOptions{
		Limit: limit,
		Filters: vectorstore.Filters{
			UserID:   options.UserID,
			AgentID:  options.AgentID,
			RunID:    options.RunID,
			Metadata: options.Filters,
		},
	})
	if err != nil {
		return nil, NewError(KindBackend, "GetAll", err)
	}

	items := make([]MemoryItem, 0, len(points))
	for _, point := range points {
		items = append(items, pointToItem(point))
	}
	return items, nil
}

// Search finds memories similar to the query, best match first. When
// the graph store is enabled, related triples are returned alongside.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResult, error) {
	options := newSearchOptions(opts...)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "Search", ErrClosed)
	}

	if strings.TrimSpace(query) == "" {
		return nil, NewError(KindInvalidArgument, "Search", fmt.Errorf("%w: query", ErrEmptyContent))
	}
	if !hasScope(options.UserID, options.AgentID, options.RunID) {
		return nil, NewError(KindInvalidScope, "Search", ErrNoScope)
	}
	limit, err := resolveLimit(options.Limit, "Search")
	if err != nil {
		return nil, err
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewError(KindProvider, "Search", err)
	}

	points, err := c.store.Search(ctx, vector, &vectorstore.SearchOptions{
		Limit: limit,
		Filters: vectorstore.Filters{
			UserID:   options.UserID,
			AgentID:  options.AgentID,
			RunID:    options.RunID,
			Metadata: options.Filters,
		},
	})
	if err != nil {
		return nil, NewError(KindBackend, "Search", err)
	}

	result := &SearchResult{Results: make([]MemoryItem, 0, len(points))}
	for _, point := range points {
		result.Results = append(result.Results, pointToItem(point))
	}

	if c.graph != nil && c.graphExt != nil {
		entities, err := c.graphExt.ExtractEntities(ctx, query, graphIdentity(options.UserID, options.AgentID))
		if err != nil {
			c.logger.WithError(err).Warn("graph entity extraction failed, returning vector results only")
		} else if len(entities) > 0 {
			triples, err := c.graph.Search(ctx, entities, &graphstore.Filters{
				UserID:  options.UserID,
				AgentID: options.AgentID,
				RunID:   options.RunID,
			}, limit)
			if err != nil {
				return nil, NewError(KindBackend, "Search", err)
			}
			result.Relations = triples
		}
	}

	return result, nil
}

// Update replaces a memory's text. The new text is re-embedded and an
// UPDATE record is appended to the ledger.
func (c *Client) Update(ctx context.Context, memoryID, text string) (*MemoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "Update", ErrClosed)
	}

	if strings.TrimSpace(text) == "" {
		return nil, NewError(KindInvalidArgument, "Update", ErrEmptyContent)
	}

	point, err := c.store.Get(ctx, memoryID)
	if err != nil {
		return nil, NewError(KindBackend, "Update", err)
	}
	if point == nil {
		return nil, NewError(KindNotFound, "Update", fmt.Errorf("%w: %s", ErrMemoryNotFound, memoryID))
	}

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, NewError(KindProvider, "Update", err)
	}

	prev := point.Payload.Text
	now := time.Now().UTC()

	payload := point.Payload
	payload.Text = text
	payload.Hash = md5Hash(text)
	payload.UpdatedAt = now

	if err := c.store.Update(ctx, memoryID, vector, &payload); err != nil {
		return nil, NewError(KindBackend, "Update", err)
	}

	if err := c.appendHistory(ctx, memoryID, &prev, &text, EventUpdate, payload.CreatedAt, now, "", "", false); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{"memory_id": memoryID, "event": EventUpdate}).Debug("memory updated")

	updated := point
	updated.Payload = payload
	item := pointToItem(updated)
	return &item, nil
}

// Delete removes a memory and appends a tombstone record to the ledger.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewError(KindInvalidArgument, "Delete", ErrClosed)
	}

	point, err := c.store.Get(ctx, memoryID)
	if err != nil {
		return NewError(KindBackend, "Delete", err)
	}
	if point == nil {
		return NewError(KindNotFound, "Delete", fmt.Errorf("%w: %s", ErrMemoryNotFound, memoryID))
	}

	if err := c.store.Delete(ctx, memoryID); err != nil {
		return NewError(KindBackend, "Delete", err)
	}

	prev := point.Payload.Text
	if err := c.appendHistory(ctx, memoryID, &prev, nil, EventDelete, point.Payload.CreatedAt, time.Now().UTC(), "", "", true); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{"memory_id": memoryID, "event": EventDelete}).Debug("memory deleted")
	return nil
}

// DeleteAll removes every memory in scope, with one tombstone record
// per memory. Graph triples in scope are removed as well.
func (c *Client) DeleteAll(ctx context.Context, opts ...DeleteAllOption) error {
	options := newDeleteAllOptions(opts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewError(KindInvalidArgument, "DeleteAll", ErrClosed)
	}

	if !hasScope(options.UserID, options.AgentID, options.RunID) {
		return NewError(KindInvalidScope, "DeleteAll", ErrNoScope)
	}

	filters := vectorstore.Filters{
		UserID:  options.UserID,
		AgentID: options.AgentID,
		RunID:   options.RunID,
	}

	points, err := c.store.List(ctx, &vectorstore.ListOptions{Limit: MaxLimit, Filters: filters})
	if err != nil {
		return NewError(KindBackend, "DeleteAll", err)
	}

	if err := c.store.DeleteAll(ctx, &filters); err != nil {
		return NewError(KindBackend, "DeleteAll", err)
	}

	now := time.Now().UTC()
	for _, point := range points {
		prev := point.Payload.Text
		if err := c.appendHistory(ctx, point.ID, &prev, nil, EventDelete, point.Payload.CreatedAt, now, "", "", true); err != nil {
			return err
		}
	}

	if c.graph != nil {
		if err := c.graph.DeleteAll(ctx, &graphstore.Filters{
			UserID:  options.UserID,
			AgentID: options.AgentID,
			RunID:   options.RunID,
		}); err != nil {
			return NewError(KindBackend, "DeleteAll", err)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":  options.UserID,
		"agent_id": options.AgentID,
		"run_id":   options.RunID,
		"deleted":  len(points),
	}).Info("deleted all memories in scope")
	return nil
}

// History returns the full change ledger for a memory, oldest first.
// A memory that never existed has an empty history.
func (c *Client) History(ctx context.Context, memoryID string) ([]history.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, NewError(KindInvalidArgument, "History", ErrClosed)
	}

	records, err := c.ledger.List(ctx, memoryID)
	if err != nil {
		return nil, NewError(KindBackend, "History", err)
	}
	return records, nil
}

// Reset drops all memories, triples, and history for every scope.
// Destructive and irreversible.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewError(KindInvalidArgument, "Reset", ErrClosed)
	}

	if err := c.store.Reset(ctx); err != nil {
		return NewError(KindBackend, "Reset", err)
	}
	if c.graph != nil {
		if err := c.graph.Reset(ctx); err != nil {
			return NewError(KindBackend, "Reset", err)
		}
	}
	if err := c.ledger.Reset(ctx); err != nil {
		return NewError(KindBackend, "Reset", err)
	}

	c.logger.Warn("all stores reset")
	return nil
}

// Close releases every provider and backend. The client is unusable
// afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for _, closer := range []func() error{
		c.store.Close,
		c.ledger.Close,
		c.llm.Close,
		c.embedder.Close,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.graph != nil {
		if err := c.graph.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) appendHistory(ctx context.Context, memoryID string, prev, next *string, event string, createdAt, updatedAt time.Time, actorID, role string, isDeleted bool) error {
	record := &history.Record{
		MemoryID:  memoryID,
		PrevValue: prev,
		NewValue:  next,
		Event:     event,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ActorID:   actorID,
		Role:      role,
		IsDeleted: isDeleted,
	}
	if err := c.ledger.Append(ctx, record); err != nil {
		return NewError(KindBackend, "History", err)
	}
	return nil
}

// resolveLimit applies the default and rejects out-of-range values.
func resolveLimit(limit int, op string) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 0 || limit > MaxLimit {
		return 0, NewError(KindInvalidArgument, op, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit))
	}
	return limit, nil
}

func pointToItem(point *vectorstore.Point) MemoryItem {
	item := MemoryItem{
		ID:        point.ID,
		Memory:    point.Payload.Text,
		Hash:      point.Payload.Hash,
		Score:     point.Score,
		CreatedAt: point.Payload.CreatedAt,
		UpdatedAt: point.Payload.UpdatedAt,
		UserID:    point.Payload.UserID,
		AgentID:   point.Payload.AgentID,
		RunID:     point.Payload.RunID,
	}
	if len(point.Payload.Metadata) > 0 {
		metadata := make(map[string]interface{}, len(point.Payload.Metadata))
		for k, v := range point.Payload.Metadata {
			switch k {
			case "actor_id":
				if s, ok := v.(string); ok {
					item.ActorID = s
					continue
				}
			case "role":
				if s, ok := v.(string); ok {
					item.Role = s
					continue
				}
			}
			metadata[k] = v
		}
		if len(metadata) > 0 {
			item.Metadata = metadata
		}
	}
	return item
}

func md5Hash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// graphIdentity picks the node name that anchors first-person
// statements in the graph.
func graphIdentity(userID, agentID string) string {
	if userID != "" {
		return userID
	}
	if agentID != "" {
		return agentID
	}
	return "user"
}
