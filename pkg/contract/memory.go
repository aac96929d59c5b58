package contract

// MemoryRecord is a single unit stored in the Vector Memory substrate.
// Metadata MUST include "profile" (§3.1); Embedding is optional and is
// populated by whichever backend stores the record.
type MemoryRecord struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// Profile returns the record's profile tag, or "" if unset.
func (m MemoryRecord) Profile() string {
	if m.Metadata == nil {
		return ""
	}
	p, _ := m.Metadata["profile"].(string)
	return p
}

// MemoryHit is a scored search result.
type MemoryHit struct {
	Record MemoryRecord
	Score  float64
}
