package chain

import (
	"maps"
	"time"
)

// UpdateKind labels why the shared state changed.
type UpdateKind string

const (
	UpdateKindSeed       UpdateKind = "seed"
	UpdateKindStepOutput UpdateKind = "step_output"
	UpdateKindStandard   UpdateKind = "standard"
)

// StateUpdate is one append-only history record. Delta holds only the keys
// written by the update, not the full state.
type StateUpdate struct {
	Originator string            `json:"originator"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       UpdateKind        `json:"kind"`
	Delta      map[string]string `json:"delta"`
	Version    int64             `json:"version"`
}

// CloneStateUpdate returns a copy that shares no map with the input.
func CloneStateUpdate(in StateUpdate) StateUpdate {
	out := in
	out.Delta = maps.Clone(in.Delta)
	return out
}

// HistoryFilter narrows History results. Zero values disable each filter.
type HistoryFilter struct {
	Originator string
	// SinceVersion keeps only updates with a strictly greater version.
	SinceVersion int64
}

// CheckpointInfo describes a stored checkpoint without its snapshot.
type CheckpointInfo struct {
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextFilter selects context items by producing step and/or tag overlap.
type ContextFilter struct {
	Steps []string
	Tags  []string
}
