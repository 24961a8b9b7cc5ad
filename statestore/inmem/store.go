package inmem

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Gurpartap/promptchain/chain"
)

type checkpoint struct {
	name      string
	state     map[string]string
	createdAt time.Time
}

// Store is a versioned key/value store for one run. A single mutex serializes
// every operation, so concurrent producers never observe a partial update.
type Store struct {
	mu          sync.Mutex
	state       map[string]string
	version     int64
	history     []chain.StateUpdate
	checkpoints map[int64]checkpoint
	now         func() time.Time
}

var _ chain.StateStore = (*Store)(nil)

// New returns an empty store at version 0. Use one store per run.
func New() *Store {
	return &Store{
		state:       map[string]string{},
		checkpoints: map[int64]checkpoint{},
		now:         time.Now,
	}
}

// Read returns a copy of the live state. With keys, only those present are returned.
func (s *Store) Read(keys ...string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		return maps.Clone(s.state)
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := s.state[key]; ok {
			out[key] = value
		}
	}
	return out
}

// Update merges delta into the live state and returns the new version.
func (s *Store) Update(originator string, delta map[string]string, kind chain.UpdateKind) int64 {
	if kind == "" {
		kind = chain.UpdateKindStandard
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	recorded := make(map[string]string, len(delta))
	for key, value := range delta {
		recorded[key] = value
		s.state[key] = value
	}
	s.history = append(s.history, chain.StateUpdate{
		Originator: originator,
		Timestamp:  s.now(),
		Kind:       kind,
		Delta:      recorded,
		Version:    s.version,
	})
	return s.version
}

// Checkpoint snapshots the live state under the current version. A second
// checkpoint at the same version replaces the first.
func (s *Store) Checkpoint(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[s.version] = checkpoint{
		name:      name,
		state:     maps.Clone(s.state),
		createdAt: s.now(),
	}
	return s.version
}

// Restore replaces the live state with the snapshot taken at exactly version
// and resets the version counter. Unknown versions leave the store untouched.
func (s *Store) Restore(version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[version]
	if !ok {
		return false
	}
	s.state = maps.Clone(cp.state)
	s.version = version
	return true
}

// History returns the update log in application order.
func (s *Store) History(filter chain.HistoryFilter) []chain.StateUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chain.StateUpdate, 0, len(s.history))
	for _, update := range s.history {
		if filter.Originator != "" && update.Originator != filter.Originator {
			continue
		}
		if update.Version <= filter.SinceVersion {
			continue
		}
		out = append(out, chain.CloneStateUpdate(update))
	}
	return out
}

func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Contributions counts history records per originator.
func (s *Store) Contributions() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, update := range s.history {
		counts[update.Originator]++
	}
	return counts
}

// Checkpoints lists stored checkpoints ordered by version.
func (s *Store) Checkpoints() []chain.CheckpointInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chain.CheckpointInfo, 0, len(s.checkpoints))
	for version, cp := range s.checkpoints {
		out = append(out, chain.CheckpointInfo{
			Name:      cp.name,
			Version:   version,
			CreatedAt: cp.createdAt,
		})
	}
	slices.SortFunc(out, func(a, b chain.CheckpointInfo) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return out
}
