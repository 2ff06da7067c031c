package core

// AddOption configures an Add call using the functional options
// pattern.
type AddOption func(*AddOptions)

// AddOptions holds the resolved options for an Add call.
type AddOptions struct {
	// UserID, AgentID, and RunID scope the memories. At least one is
	// required.
	UserID  string
	AgentID string
	RunID   string

	// Metadata is attached verbatim to every memory the call writes.
	Metadata map[string]interface{}

	// Infer controls the LLM pipeline. When false, each user-role
	// message is stored verbatim without extraction or decisioning.
	Infer bool

	// MemoryType switches the pipeline. MemoryTypeProcedural replaces
	// fact extraction with a summary of the whole transcript.
	MemoryType string

	// Prompt overrides the fact extraction prompt for this call.
	Prompt string

	// ActorID attributes the memories to a speaker when the messages
	// carry no Name.
	ActorID string
}

// SearchOption configures a Search call.
type SearchOption func(*SearchOptions)

// SearchOptions holds the resolved options for a Search call.
type SearchOptions struct {
	UserID  string
	AgentID string
	RunID   string

	// Limit caps the result count, DefaultLimit when zero.
	Limit int

	// Filters matches against memory metadata, all keys must match.
	Filters map[string]interface{}
}

// GetAllOption configures a GetAll call.
type GetAllOption func(*GetAllOptions)

// GetAllOptions holds the resolved options for a GetAll call.
type GetAllOptions struct {
	UserID  string
	AgentID string
	RunID   string

	Limit   int
	Filters map[string]interface{}
}

// DeleteAllOption configures a DeleteAll call.
type DeleteAllOption func(*DeleteAllOptions)

// DeleteAllOptions holds the resolved options for a DeleteAll call.
type DeleteAllOptions struct {
	UserID  string
	AgentID string
	RunID   string
}

// WithUserID sets the user scope for Add.
//
// Example:
//
//	result, _ := client.Add(ctx, messages, core.WithUserID("alice"))
func WithUserID(userID string) AddOption {
	return func(opts *AddOptions) { opts.UserID = userID }
}

// WithAgentID sets the agent scope for Add.
func WithAgentID(agentID string) AddOption {
	return func(opts *AddOptions) { opts.AgentID = agentID }
}

// WithRunID sets the run scope for Add.
func WithRunID(runID string) AddOption {
	return func(opts *AddOptions) { opts.RunID = runID }
}

// WithMetadata attaches metadata to every memory an Add call writes.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) { opts.Metadata = metadata }
}

// WithInfer toggles the LLM pipeline for Add. The default is true;
// pass false to store each user message verbatim.
func WithInfer(infer bool) AddOption {
	return func(opts *AddOptions) { opts.Infer = infer }
}

// WithMemoryType sets the memory type for Add. Passing
// MemoryTypeProcedural summarizes the transcript into one memory
// instead of extracting facts.
func WithMemoryType(memoryType string) AddOption {
	return func(opts *AddOptions) { opts.MemoryType = memoryType }
}

// WithPrompt overrides the fact extraction prompt for one Add call.
func WithPrompt(prompt string) AddOption {
	return func(opts *AddOptions) { opts.Prompt = prompt }
}

// WithActorID attributes memories from this Add call to a speaker.
// A message's own Name takes precedence.
func WithActorID(actorID string) AddOption {
	return func(opts *AddOptions) { opts.ActorID = actorID }
}

// WithUserIDForSearch sets the user scope for Search.
//
// Example:
//
//	result, _ := client.Search(ctx, "coffee", core.WithUserIDForSearch("alice"))
func WithUserIDForSearch(userID string) SearchOption {
	return func(opts *SearchOptions) { opts.UserID = userID }
}

// WithAgentIDForSearch sets the agent scope for Search.
func WithAgentIDForSearch(agentID string) SearchOption {
	return func(opts *SearchOptions) { opts.AgentID = agentID }
}

// WithRunIDForSearch sets the run scope for Search.
func WithRunIDForSearch(runID string) SearchOption {
	return func(opts *SearchOptions) { opts.RunID = runID }
}

// WithLimit caps how many results Search returns. Values above
// MaxLimit are rejected by Search.
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) { opts.Limit = limit }
}

// WithFilters narrows Search results by metadata equality.
func WithFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) { opts.Filters = filters }
}

// WithUserIDForGetAll sets the user scope for GetAll.
func WithUserIDForGetAll(userID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.UserID = userID }
}

// WithAgentIDForGetAll sets the agent scope for GetAll.
func WithAgentIDForGetAll(agentID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.AgentID = agentID }
}

// WithRunIDForGetAll sets the run scope for GetAll.
func WithRunIDForGetAll(runID string) GetAllOption {
	return func(opts *GetAllOptions) { opts.RunID = runID }
}

// WithLimitForGetAll caps how many memories GetAll returns.
func WithLimitForGetAll(limit int) GetAllOption {
	return func(opts *GetAllOptions) { opts.Limit = limit }
}

// WithFiltersForGetAll narrows GetAll results by metadata equality.
func WithFiltersForGetAll(filters map[string]interface{}) GetAllOption {
	return func(opts *GetAllOptions) { opts.Filters = filters }
}

// WithUserIDForDeleteAll sets the user scope for DeleteAll.
func WithUserIDForDeleteAll(userID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.UserID = userID }
}

// WithAgentIDForDeleteAll sets the agent scope for DeleteAll.
func WithAgentIDForDeleteAll(agentID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.AgentID = agentID }
}

// WithRunIDForDeleteAll sets the run scope for DeleteAll.
func WithRunIDForDeleteAll(runID string) DeleteAllOption {
	return func(opts *DeleteAllOptions) { opts.RunID = runID }
}

func newAddOptions(opts ...AddOption) *AddOptions {
	options := &AddOptions{Infer: true}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func newSearchOptions(opts ...SearchOption) *SearchOptions {
	options := &SearchOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func newGetAllOptions(opts ...GetAllOption) *GetAllOptions {
	options := &GetAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func newDeleteAllOptions(opts ...DeleteAllOption) *DeleteAllOptions {
	options := &DeleteAllOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// hasScope reports whether at least one scope identifier is set.
func hasScope(userID, agentID, runID string) bool {
	return userID != "" || agentID != "" || runID != ""
}
