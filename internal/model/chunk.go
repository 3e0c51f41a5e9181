package model

// Chunk is a contiguous span of a document's normalized text together with
// its embedding. Chunks are owned by the document: deleting or reindexing
// the document destroys them.
type Chunk struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	OrgID     string    `json:"org_id"`
	Text      string    `json:"text"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Ctime     int64     `json:"ctime"`
}
