// Package memory implements the Vector Memory module (§4.6): a pluggable
// Backend interface with profile-isolated remember/search/flush/load, a
// deterministic in-memory local backend, and a redis-backed external
// example. Follows the Manager/Config split in
// internal/memory/manager.go — backend selection by
// a string discriminator, per-backend config structs — generalized from
// a sqlite-vec/lancedb/pgvector trio to local/redis.
package memory

import (
	"context"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// Backend is the Vector Memory interface described in §4.6. Every
// implementation MUST enforce profile isolation structurally: Search
// never returns records belonging to a different profile than the one
// requested.
type Backend interface {
	// Remember stores text under metadata (which MUST carry a "profile"
	// key) for later retrieval.
	Remember(ctx context.Context, text string, metadata map[string]any) error

	// Search returns the topK highest-scoring hits for query, restricted
	// to profile.
	Search(ctx context.Context, profile, query string, topK int) ([]contract.MemoryHit, error)

	// Flush persists any buffered state to durable storage, where
	// applicable. Backends with no durable tier MAY no-op.
	Flush(ctx context.Context) error

	// Load restores state previously written by Flush, identified by an
	// implementation-defined key (a file path for local; the redis
	// backend ignores it).
	Load(ctx context.Context, key string) error
}

// Embedder produces a fixed-dimension vector for a piece of text.
// Embedder implementations MUST be deterministic — equal text always
// produces an equal vector — so the default local configuration is
// reproducible without a network dependency (§4.6 "Determinism").
type Embedder interface {
	Embed(text string) []float32
}

func profileOf(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if p, ok := metadata["profile"].(string); ok {
		return p
	}
	return ""
}
