package memory

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/haasonsaas/substrate/pkg/contract"
)

// stateFile is the on-disk shape written by LocalBackend.Flush and read
// by Load (§4.6 "Persistence"): {"records": [{"text","metadata","embedding"?}]}.
type stateFile struct {
	Records []contract.MemoryRecord `json:"records"`
}

// LocalBackend is the in-memory Backend (§4.6 "local"): scoring by
// normalized token overlap, records keyed by profile, with optional
// JSON-file persistence. Follows an in-process,
// mutex-guarded store pattern (internal/observability/events.go's
// MemoryEventStore) generalized from event storage to memory records.
type LocalBackend struct {
	mu       sync.RWMutex
	records  []contract.MemoryRecord
	embedder Embedder
	path     string // optional; empty disables file persistence
}

// NewLocalBackend builds a LocalBackend. path, if non-empty, is the JSON
// state file written by Flush and read by Load(path).
func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{embedder: NewHashingEmbedder(), path: path}
}

// Remember implements Backend.
func (b *LocalBackend) Remember(ctx context.Context, text string, metadata map[string]any) error {
	record := contract.MemoryRecord{
		Text:      text,
		Metadata:  cloneMetadata(metadata),
		Embedding: b.embedder.Embed(text),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
	return nil
}

// Search implements Backend, restricting candidates to profile before
// scoring (§4.6 "Cross-profile reads are structurally impossible via the
// public API").
func (b *LocalBackend) Search(ctx context.Context, profile, query string, topK int) ([]contract.MemoryHit, error) {
	if topK <= 0 {
		topK = 5
	}

	b.mu.RLock()
	candidates := make([]contract.MemoryRecord, 0, len(b.records))
	for _, r := range b.records {
		if r.Profile() == profile {
			candidates = append(candidates, r)
		}
	}
	b.mu.RUnlock()

	hits := make([]contract.MemoryHit, 0, len(candidates))
	for _, r := range candidates {
		score := tokenOverlapScore(query, r.Text)
		if score <= 0 {
			continue
		}
		hits = append(hits, contract.MemoryHit{Record: r, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Flush implements Backend, writing all records to b.path as JSON when a
// path is configured.
func (b *LocalBackend) Flush(ctx context.Context) error {
	if b.path == "" {
		return nil
	}

	b.mu.RLock()
	snapshot := stateFile{Records: append([]contract.MemoryRecord(nil), b.records...)}
	b.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o644)
}

// Load implements Backend, replacing the in-memory record set with the
// contents of the JSON state file at key.
func (b *LocalBackend) Load(ctx context.Context, key string) error {
	data, err := os.ReadFile(key)
	if err != nil {
		return err
	}
	var snapshot stateFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = snapshot.Records
	return nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
