package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Cache key namespaces. Key layouts are a wire contract: entries written
// before a restart must remain addressable after it.
const (
	NSResponse  = "response_cache"
	NSSearch    = "search_cache"
	NSEmbedding = "embedding_cache"
	NSRateLimit = "rate_limit"
	NSQueue     = "worker"
)

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// TenantKey builds `namespace:org:sha256(content)`. Hashing bounds key
// length and keeps arbitrary query text out of the key space; the org
// segment keeps entries tenant-scoped.
func TenantKey(namespace, orgID, content string) string {
	return namespace + ":" + orgID + ":" + hashContent(content)
}

// EmbeddingKey deliberately omits the tenant: the embedding of a given text
// under a given model is tenant-independent and safe to share. Every other
// namespace must go through TenantKey.
func EmbeddingKey(modelName, text string) string {
	if modelName == "" {
		modelName = "unknown"
	}
	return NSEmbedding + ":" + modelName + ":" + hashContent(text)
}

func RateLimitKey(orgID, userID string) string {
	key := NSRateLimit + ":" + orgID
	if userID != "" {
		key += ":" + userID
	}
	return key
}
