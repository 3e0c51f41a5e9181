package model

type SearchResult struct {
	ID       string            `json:"id"`
	DocID    string            `json:"doc_id"`
	Title    string            `json:"title"`
	Source   string            `json:"source"`
	Snippet  string            `json:"snippet"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
	// Degraded marks results produced by the lexical fallback rather than
	// true vector similarity.
	Degraded bool `json:"degraded,omitempty"`
}

type SearchFilters struct {
	Source string `json:"source"`
}

// Source is a citation attached to a generated answer.
type Source struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}
