package mergetree

import (
	"sort"
	"sync"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
)

// ActiveSet tracks a table's committed parts under one mutex. Registration
// is the irrevocable visibility point for readers. Retired parts stay on
// disk until every acquired reference is released, then their directories
// are removed.
type ActiveSet struct {
	disk disk.Disk

	mu      sync.Mutex
	parts   map[string]*activePart
	counter uint64 // last allocated block number
}

type activePart struct {
	part *Part
	refs int
}

func NewActiveSet(d disk.Disk) *ActiveSet {
	return &ActiveSet{
		disk:  d,
		parts: make(map[string]*activePart),
	}
}

// SeedBlockCounter raises the block counter to at least n, so numbers
// allocated after a restart never collide with adopted parts.
func (s *ActiveSet) SeedBlockCounter(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.counter {
		s.counter = n
	}
}

// AllocateBlockNumber hands out the next block number.
func (s *ActiveSet) AllocateBlockNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// Register makes a committed part visible to readers.
func (s *ActiveSet) Register(p *Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := p.Name.String()
	if _, exists := s.parts[name]; exists {
		return logicErrorf("part %s registered twice", name)
	}
	p.State = PartActive
	s.parts[name] = &activePart{part: p}
	return nil
}

// Snapshot returns the active parts ordered by partition and block range.
func (s *ActiveSet) Snapshot() []*Part {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Part, 0, len(s.parts))
	for _, ap := range s.parts {
		if ap.part.State == PartActive {
			out = append(out, ap.part)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Name, out[j].Name
		if a.PartitionID != b.PartitionID {
			return a.PartitionID < b.PartitionID
		}
		if a.MinBlock != b.MinBlock {
			return a.MinBlock < b.MinBlock
		}
		return a.Level < b.Level
	})
	return out
}

// Get returns an active part by name.
func (s *ActiveSet) Get(name string) (*Part, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ap, ok := s.parts[name]
	if !ok || ap.part.State != PartActive {
		return nil, false
	}
	return ap.part, true
}

// Acquire pins an active part against removal. The release function must be
// called exactly once when the caller is done reading; releasing the last
// reference of a retired part removes its directory.
func (s *ActiveSet) Acquire(name string) (*Part, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ap, ok := s.parts[name]
	if !ok || ap.part.State != PartActive {
		return nil, nil, false
	}
	ap.refs++

	released := false
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if released {
			return
		}
		released = true
		ap.refs--
		if ap.refs == 0 && ap.part.State == PartOutdated {
			s.removeLocked(name, ap)
		}
	}
	return ap.part, release, true
}

// Retire takes a part out of the active set. Its directory is removed
// immediately when unreferenced, otherwise when the last reader releases.
func (s *ActiveSet) Retire(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ap, ok := s.parts[name]
	if !ok {
		return logicErrorf("retire of unknown part %s", name)
	}
	if ap.part.State != PartActive {
		return logicErrorf("retire of part %s in state %s", name, ap.part.State)
	}

	ap.part.State = PartOutdated
	if ap.refs == 0 {
		s.removeLocked(name, ap)
	}
	return nil
}

// Stats summarizes the active parts.
func (s *ActiveSet) Stats() (parts int, rows uint64, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ap := range s.parts {
		if ap.part.State != PartActive {
			continue
		}
		parts++
		rows += ap.part.Rows
		bytes += ap.part.BytesOnDisk
	}
	return parts, rows, bytes
}

func (s *ActiveSet) removeLocked(name string, ap *activePart) {
	ap.part.State = PartDeleting
	delete(s.parts, name)
	if err := s.disk.RemoveAll(ap.part.Dir); err != nil {
		logging.Warn("failed to remove retired part directory", "dir", ap.part.Dir, "error", err)
	}
}
