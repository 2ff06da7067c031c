// Package chromem provides an embedded, pure-Go vector index backend on top
// of chromem-go.
//
// The backend keeps everything in process memory, which makes it a good fit
// for development, tests, and single-process deployments that do not need
// durability. Embeddings are supplied by the caller; chromem never calls an
// embedding API itself.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using chromem-go.
type Client struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string

	// points mirrors the collection for exact-ID lookups and listing,
	// which chromem's query-only API does not cover.
	points map[string]vectorstore.Point
	mu     sync.RWMutex
}

// Config contains configuration for creating a chromem vector store.
type Config struct {
	// CollectionName is the name of the chromem collection, defaults to "memories".
	CollectionName string
}

// NewClient creates a new embedded chromem vector store.
func NewClient(cfg *Config) (*Client, error) {
	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("NewChromemClient: %w", err)
	}

	return &Client{
		db:             db,
		collection:     collection,
		collectionName: name,
		points:         make(map[string]vectorstore.Point),
	}, nil
}

// Insert upserts points by ID.
func (c *Client) Insert(ctx context.Context, points []vectorstore.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, point := range points {
		if point.Payload.CreatedAt.IsZero() {
			point.Payload.CreatedAt = time.Now().UTC()
		}

		doc := chromem.Document{
			ID:        point.ID,
			Content:   point.Payload.Text,
			Embedding: point.Vector,
			Metadata:  scopeMetadata(&point.Payload),
		}
		if err := c.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("Insert: %w", err)
		}
		c.points[point.ID] = point
	}

	return nil
}

// Search performs similarity search via chromem's cosine query.
func (c *Client) Search(ctx context.Context, vector []float32, opts *vectorstore.SearchOptions) ([]*vectorstore.Point, error) {
	if opts == nil {
		opts = &vectorstore.SearchOptions{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > count {
		// chromem rejects nResults above the collection size.
		limit = count
	}

	where := whereClause(&opts.Filters)
	results, err := c.collection.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		if strings.Contains(err.Error(), "no documents") {
			return nil, nil
		}
		return nil, fmt.Errorf("Search: %w", err)
	}

	points := make([]*vectorstore.Point, 0, len(results))
	for _, result := range results {
		stored, ok := c.points[result.ID]
		if !ok {
			continue
		}
		if !matchMetadata(stored.Payload.Metadata, opts.Filters.Metadata) {
			continue
		}
		point := stored
		point.Score = result.Similarity
		points = append(points, &point)
	}

	return points, nil
}

// Get retrieves a point by ID. A missing ID yields (nil, nil).
func (c *Client) Get(_ context.Context, id string) (*vectorstore.Point, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	point, ok := c.points[id]
	if !ok {
		return nil, nil
	}
	return &point, nil
}

// Update replaces the vector and/or payload of an existing point.
func (c *Client) Update(ctx context.Context, id string, vector []float32, payload *vectorstore.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.points[id]
	if !ok {
		return fmt.Errorf("Update: point %s not found", id)
	}

	if vector == nil {
		vector = existing.Vector
	}
	updated := existing
	updated.Vector = vector
	if payload != nil {
		updated.Payload = *payload
	}
	if updated.Payload.UpdatedAt.IsZero() {
		updated.Payload.UpdatedAt = time.Now().UTC()
	}

	doc := chromem.Document{
		ID:        id,
		Content:   updated.Payload.Text,
		Embedding: updated.Vector,
		Metadata:  scopeMetadata(&updated.Payload),
	}
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	c.points[id] = updated

	return nil
}

// Delete removes a point by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.points[id]; !ok {
		return fmt.Errorf("Delete: point %s not found", id)
	}

	if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	delete(c.points, id)

	return nil
}

// List returns points matching the filters, most recently created first.
func (c *Client) List(_ context.Context, opts *vectorstore.ListOptions) ([]*vectorstore.Point, error) {
	if opts == nil {
		opts = &vectorstore.ListOptions{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var points []*vectorstore.Point
	for id := range c.points {
		point := c.points[id]
		if !matchFilters(&point.Payload, &opts.Filters) {
			continue
		}
		p := point
		points = append(points, &p)
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Payload.CreatedAt.Equal(points[j].Payload.CreatedAt) {
			return points[i].ID < points[j].ID
		}
		return points[i].Payload.CreatedAt.After(points[j].Payload.CreatedAt)
	})

	if opts.Limit > 0 && len(points) > opts.Limit {
		points = points[:opts.Limit]
	}

	return points, nil
}

// DeleteAll removes every point matching the filters.
func (c *Client) DeleteAll(ctx context.Context, filters *vectorstore.Filters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.points {
		point := c.points[id]
		if !matchFilters(&point.Payload, filters) {
			continue
		}
		if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("DeleteAll: %w", err)
		}
		delete(c.points, id)
	}

	return nil
}

// Reset drops and recreates the collection.
func (c *Client) Reset(_ context.Context) error {
	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}

	collection, err := c.db.CreateCollection(c.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("Reset: %w", err)
	}

	c.mu.Lock()
	c.collection = collection
	c.points = make(map[string]vectorstore.Point)
	c.mu.Unlock()

	return nil
}

// Close releases the in-memory store.
func (c *Client) Close() error {
	c.mu.Lock()
	c.points = nil
	c.mu.Unlock()
	return nil
}

// scopeMetadata builds the chromem document metadata used for where-filtering.
func scopeMetadata(payload *vectorstore.Payload) map[string]string {
	meta := map[string]string{}
	if payload.UserID != "" {
		meta["user_id"] = payload.UserID
	}
	if payload.AgentID != "" {
		meta["agent_id"] = payload.AgentID
	}
	if payload.RunID != "" {
		meta["run_id"] = payload.RunID
	}
	return meta
}

func whereClause(filters *vectorstore.Filters) map[string]string {
	if filters == nil {
		return nil
	}
	where := map[string]string{}
	if filters.UserID != "" {
		where["user_id"] = filters.UserID
	}
	if filters.AgentID != "" {
		where["agent_id"] = filters.AgentID
	}
	if filters.RunID != "" {
		where["run_id"] = filters.RunID
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

func matchFilters(payload *vectorstore.Payload, filters *vectorstore.Filters) bool {
	if filters == nil {
		return true
	}
	if filters.UserID != "" && payload.UserID != filters.UserID {
		return false
	}
	if filters.AgentID != "" && payload.AgentID != filters.AgentID {
		return false
	}
	if filters.RunID != "" && payload.RunID != filters.RunID {
		return false
	}
	return matchMetadata(payload.Metadata, filters.Metadata)
}

func matchMetadata(metadata map[string]interface{}, want map[string]interface{}) bool {
	for key, expected := range want {
		actual, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false
		}
	}
	return true
}
