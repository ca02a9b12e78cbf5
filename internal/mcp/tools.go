package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query       string `json:"query" jsonschema:"the search query to execute"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	KeywordOnly bool   `json:"keyword_only,omitempty" jsonschema:"skip semantic search and use keyword matching only"`
	PerChunk    bool   `json:"per_chunk,omitempty" jsonschema:"return individual passages instead of one result per document, for context assembly"`
}

// SearchResultItem is one row of the search output: a document, or a
// single passage of one in per-chunk mode.
type SearchResultItem struct {
	DocID        string   `json:"doc_id"`
	ChunkIndex   int      `json:"chunk_index"`
	Title        string   `json:"title,omitempty"`
	Snippet      string   `json:"snippet"`
	ContentType  string   `json:"content_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultItem `json:"results"`

	// Degraded is set when one index side was unavailable.
	Degraded bool `json:"degraded,omitempty"`

	// Unavailable is set when both sides failed; results are empty.
	Unavailable bool `json:"unavailable,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// StatsInput defines the input schema for the stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the stats tool.
type StatsOutput struct {
	TotalDocs   int    `json:"total_docs"`
	TotalChunks int    `json:"total_chunks"`
	LastUpdated string `json:"last_updated,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
	EmbedModel  string `json:"embed_model,omitempty"`
}
