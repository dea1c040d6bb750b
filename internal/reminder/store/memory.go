package store

import (
	"container/heap"
	"context"
	"sync"

	"dailybot/internal/reminder"
)

// slot is one arena cell: the entry plus its tombstone flag and heap position.
type slot struct {
	entry   reminder.Entry
	heapIdx int
	deleted bool
}

// entryHeap keeps the earliest entry at index 0. Ties on scheduled time
// break on task id so the order stays stable.
type entryHeap []*slot

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].entry.Before(h[j].entry) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *entryHeap) Push(x any) {
	s := x.(*slot)
	s.heapIdx = len(*h)
	*h = append(*h, s)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.heapIdx = -1
	*h = old[:n-1]
	return s
}

// Memory is the in-process Store: a min-heap arena indexed by task id with
// lazy tombstone reclamation. It offers no durability and backs tests and
// ephemeral runs; the sqlite store is the production implementation.
type Memory struct {
	mu         sync.Mutex
	h          entryHeap
	byID       map[int64]*slot // task id -> active slot
	tombstones int

	wake *WakeSignal
}

func NewMemory(wake *WakeSignal) *Memory {
	h := make(entryHeap, 0, 64)
	heap.Init(&h)
	return &Memory{h: h, byID: make(map[int64]*slot), wake: wake}
}

func (m *Memory) Upsert(ctx context.Context, e reminder.Entry) error {
	e.ScheduledAt = e.ScheduledAt.UTC()
	e.Deleted = false

	m.mu.Lock()
	// Wake heuristic: compare against the minimum known before the write.
	// Stale under races; the loop's idle ceiling backstops a missed wake.
	prevMin := m.peekLocked()
	undercuts := prevMin == nil || e.ScheduledAt.Before(prevMin.entry.ScheduledAt)

	if prev, ok := m.byID[e.TaskID]; ok {
		prev.deleted = true
		m.tombstones++
	}
	s := &slot{entry: e}
	heap.Push(&m.h, s)
	m.byID[e.TaskID] = s

	m.maybeCompactLocked()
	m.mu.Unlock()

	if undercuts {
		m.wake.Fire()
	}
	return nil
}

func (m *Memory) PeekMin(ctx context.Context) (reminder.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.peekLocked()
	if s == nil {
		return reminder.Entry{}, false, nil
	}
	return s.entry, true, nil
}

func (m *Memory) PopMin(ctx context.Context) (reminder.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.peekLocked()
	if s == nil {
		return reminder.Entry{}, false, nil
	}
	heap.Pop(&m.h)
	delete(m.byID, s.entry.TaskID)
	return s.entry, true, nil
}

func (m *Memory) Cancel(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[taskID]
	if !ok {
		return ErrNotFound
	}
	// Flip the flag, leave the heap alone. The slot surfaces later at the
	// head (discarded for free) or goes out with the next compaction.
	s.deleted = true
	m.tombstones++
	delete(m.byID, taskID)
	m.maybeCompactLocked()
	return nil
}

func (m *Memory) HasPending(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peekLocked() != nil, nil
}

func (m *Memory) Compact(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compactLocked()
	return nil
}

func (m *Memory) Stats(ctx context.Context) (active, tombstones int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), m.tombstones, nil
}

// peekLocked returns the minimum active slot, discarding any tombstones it
// finds at the head. Callers must hold m.mu.
func (m *Memory) peekLocked() *slot {
	for m.h.Len() > 0 {
		root := m.h[0]
		if root.deleted {
			heap.Pop(&m.h)
			m.tombstones--
			continue
		}
		return root
	}
	return nil
}

func (m *Memory) maybeCompactLocked() {
	if shouldCompact(len(m.byID), m.tombstones) {
		m.compactLocked()
	}
}

// compactLocked rebuilds the arena keeping only active slots.
func (m *Memory) compactLocked() {
	kept := make(entryHeap, 0, len(m.byID))
	for _, s := range m.h {
		if s != nil && !s.deleted {
			kept = append(kept, s)
		}
	}
	for i, s := range kept {
		s.heapIdx = i
	}
	heap.Init(&kept)
	m.h = kept
	m.tombstones = 0
}
