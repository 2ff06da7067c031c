package core

import (
	"context"
	"sync"

	"github.com/engram-ai/engram-go/pkg/history"
)

// AsyncAddResult carries an Add outcome over a channel.
type AsyncAddResult struct {
	Result *AddResult
	Error  error
}

// AsyncSearchResult carries a Search outcome over a channel.
type AsyncSearchResult struct {
	Result *SearchResult
	Error  error
}

// AsyncGetAllResult carries a GetAll outcome over a channel.
type AsyncGetAllResult struct {
	Items []MemoryItem
	Error error
}

// AsyncHistoryResult carries a History outcome over a channel.
type AsyncHistoryResult struct {
	Records []history.Record
	Error   error
}

// AsyncClient wraps Client and runs operations in goroutines,
// returning results over buffered channels. Wait blocks until every
// in-flight operation has finished.
//
// Example:
//
//	async, _ := core.NewAsyncClient(config)
//	defer async.Close()
//
//	ch := async.AddAsync(ctx, messages, core.WithUserID("alice"))
//	out := <-ch
//	if out.Error != nil {
//	    log.Fatal(out.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates an asynchronous client.
func NewAsyncClient(config *Config) (*AsyncClient, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return &AsyncClient{Client: client}, nil
}

// AddAsync runs Add in a goroutine.
func (ac *AsyncClient) AddAsync(ctx context.Context, messages []Message, opts ...AddOption) <-chan *AsyncAddResult {
	resultChan := make(chan *AsyncAddResult, 1)
	ac.wg.Add(1)
	go func() {
		defer ac.wg.Done()
		result, err := ac.Add(ctx, messages, opts...)
		resultChan <- &AsyncAddResult{Result: result, Error: err}
		close(resultChan)
	}()
	return resultChan
}

// SearchAsync runs Search in a goroutine.
func (ac *AsyncClient) SearchAsync(ctx context.Context, query string, opts ...SearchOption) <-chan *AsyncSearchResult {
	resultChan := make(chan *AsyncSearchResult, 1)
	ac.wg.Add(1)
	go func() {
		defer ac.wg.Done()
		result, err := ac.Search(ctx, query, opts...)
		resultChan <- &AsyncSearchResult{Result: result, Error: err}
		close(resultChan)
	}()
	return resultChan
}

// GetAllAsync runs GetAll in a goroutine.
func (ac *AsyncClient) GetAllAsync(ctx context.Context, opts ...GetAllOption) <-chan *AsyncGetAllResult {
	resultChan := make(chan *AsyncGetAllResult, 1)
	ac.wg.Add(1)
	go func() {
		defer ac.wg.Done()
		items, err := ac.GetAll(ctx, opts...)
		resultChan <- &AsyncGetAllResult{Items: items, Error: err}
		close(resultChan)
	}()
	return resultChan
}

// HistoryAsync runs History in a goroutine.
func (ac *AsyncClient) HistoryAsync(ctx context.Context, memoryID string) <-chan *AsyncHistoryResult {
	resultChan := make(chan *AsyncHistoryResult, 1)
	ac.wg.Add(1)
	go func() {
		defer ac.wg.Done()
		records, err := ac.History(ctx, memoryID)
		resultChan <- &AsyncHistoryResult{Records: records, Error: err}
		close(resultChan)
	}()
	return resultChan
}

// Wait blocks until all in-flight async operations complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close waits for in-flight operations, then closes the client.
func (ac *AsyncClient) Close() error {
	ac.wg.Wait()
	return ac.Client.Close()
}
