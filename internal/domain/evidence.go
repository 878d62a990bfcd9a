package domain

import (
	"encoding/json"
	"time"
)

// EvidenceEvent is one append-only record in a run's evidence stream. Seq is
// strictly increasing per request id, assigned by the recorder's single writer.
type EvidenceEvent struct {
	RequestID   string          `json:"request_id"`
	Seq         uint64          `json:"seq"`
	Ts          time.Time       `json:"ts"`
	Type        EventType       `json:"type"`
	StepIndex   *int            `json:"step_index,omitempty"`
	Attempt     *int            `json:"attempt,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ArtifactRef string          `json:"artifact_ref,omitempty"`
}

// ArtifactRef identifies a stored evidence blob.
type ArtifactRef struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
	Path   string `json:"path,omitempty"`
}
