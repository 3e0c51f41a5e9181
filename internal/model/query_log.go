package model

// QueryLog records one answered question. Rows are append-only.
type QueryLog struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	Input     string `json:"input"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	Vendor    string `json:"vendor"`
	CacheHit  bool   `json:"cache_hit"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error"`
	Ctime     int64  `json:"ctime"`
}
