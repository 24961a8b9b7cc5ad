package inmem

import (
	"context"
	"maps"
	"sync"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/telemetry"
)

// StepEvent is one captured workflow step notification.
type StepEvent struct {
	Name     string
	Kind     chain.StepEventKind
	Metadata map[string]any
}

// Recorder captures telemetry in memory and exposes deterministic snapshots.
type Recorder struct {
	mu     sync.RWMutex
	calls  []chain.CallRecord
	events []StepEvent
}

var _ chain.Telemetry = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{
		calls:  make([]chain.CallRecord, 0),
		events: make([]StepEvent, 0),
	}
}

func (r *Recorder) LogCall(_ context.Context, record chain.CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, record)
}

func (r *Recorder) LogWorkflowStep(_ context.Context, name string, kind chain.StepEventKind, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, StepEvent{Name: name, Kind: kind, Metadata: maps.Clone(metadata)})
}

func (r *Recorder) Summary() chain.Summary {
	return telemetry.Summarize("", "", r.Calls())
}

func (r *Recorder) Calls() []chain.CallRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chain.CallRecord, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) Events() []StepEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StepEvent, len(r.events))
	for i := range r.events {
		out[i] = r.events[i]
		out[i].Metadata = maps.Clone(r.events[i].Metadata)
	}
	return out
}

// EventsOfKind filters Events by kind.
func (r *Recorder) EventsOfKind(kind chain.StepEventKind) []StepEvent {
	var out []StepEvent
	for _, event := range r.Events() {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}
