package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// RedisBackend is the external Backend example wired per
// §[FULL-DOMAIN]: profile-scoped records are stored as JSON values in a
// per-profile redis list, so Search only ever reads the requesting
// profile's own key. Scoring is the same deterministic token-overlap
// scheme as LocalBackend rather than a server-side vector search, since
// redis' native vector search module is not assumed to be present.
type RedisBackend struct {
	client    *redis.Client
	embedder  Embedder
	keyPrefix string
}

// NewRedisBackend builds a RedisBackend over an existing client.
// keyPrefix namespaces this backend's keys (e.g. "substrate:memory").
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "substrate:memory"
	}
	return &RedisBackend{client: client, embedder: NewHashingEmbedder(), keyPrefix: keyPrefix}
}

func (b *RedisBackend) profileKey(profile string) string {
	return fmt.Sprintf("%s:%s", b.keyPrefix, profile)
}

// Remember implements Backend by RPUSHing a JSON-encoded record onto the
// profile's list.
func (b *RedisBackend) Remember(ctx context.Context, text string, metadata map[string]any) error {
	record := contract.MemoryRecord{
		Text:      text,
		Metadata:  cloneMetadata(metadata),
		Embedding: b.embedder.Embed(text),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.client.RPush(ctx, b.profileKey(record.Profile()), data).Err()
}

// Search implements Backend by scanning the profile's list and scoring
// by token overlap, the same as LocalBackend.
func (b *RedisBackend) Search(ctx context.Context, profile, query string, topK int) ([]contract.MemoryHit, error) {
	if topK <= 0 {
		topK = 5
	}

	raw, err := b.client.LRange(ctx, b.profileKey(profile), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	hits := make([]contract.MemoryHit, 0, len(raw))
	for _, item := range raw {
		var record contract.MemoryRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			continue
		}
		score := tokenOverlapScore(query, record.Text)
		if score <= 0 {
			continue
		}
		hits = append(hits, contract.MemoryHit{Record: record, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Flush implements Backend. redis is already durable per-write, so this
// is a no-op; it exists to satisfy the Backend interface uniformly.
func (b *RedisBackend) Flush(ctx context.Context) error { return nil }

// Load implements Backend. redis already holds the authoritative state,
// so Load restores nothing: it only pings the server, and key is not
// used.
func (b *RedisBackend) Load(ctx context.Context, key string) error {
	return b.client.Ping(ctx).Err()
}
