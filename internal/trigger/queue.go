// Package trigger holds the ordered set of pending lifecycle triggers.
//
// The queue is keyed by (event, trigger type): adding a trigger for a key
// that is already queued replaces it. Entries pop in fire-time order, and
// same-instant entries pop in trigger-type priority order.
//
// A Queue is meant to have exactly one owner (the scheduler service).
// Running two schedulers over separate queues for the same events would
// double-fire transitions.
package trigger

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"campusevents/internal/domain"
)

type item struct {
	trigger domain.Trigger
	index   int
}

type triggerHeap []*item

func (h triggerHeap) Len() int           { return len(h) }
func (h triggerHeap) Less(i, j int) bool { return h[i].trigger.Before(h[j].trigger) }
func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *triggerHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a fire-time ordered, key-unique trigger set. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	heap  triggerHeap
	byKey map[domain.TriggerKey]*item
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{byKey: make(map[domain.TriggerKey]*item)}
}

// Add inserts t, replacing any queued trigger with the same key.
func (q *Queue) Add(t domain.Trigger) {
	t.Fired = false
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.byKey[t.Key()]; ok {
		it.trigger = t
		heap.Fix(&q.heap, it.index)
		return
	}
	it := &item{trigger: t}
	heap.Push(&q.heap, it)
	q.byKey[t.Key()] = it
}

// PopDue removes and returns every trigger with FireAt <= now, ordered by
// fire time then trigger-type priority.
func (q *Queue) PopDue(now time.Time) []domain.Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []domain.Trigger
	for q.heap.Len() > 0 {
		next := q.heap[0]
		if next.trigger.FireAt.After(now) {
			break
		}
		heap.Pop(&q.heap)
		delete(q.byKey, next.trigger.Key())
		due = append(due, next.trigger)
	}
	return due
}

// Remove purges every trigger of eventID and returns how many were dropped.
func (q *Queue) Remove(eventID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, tt := range domain.TriggerTypes {
		it, ok := q.byKey[domain.TriggerKey{EventID: eventID, Type: tt}]
		if !ok {
			continue
		}
		heap.Remove(&q.heap, it.index)
		delete(q.byKey, it.trigger.Key())
		n++
	}
	return n
}

// Pending returns the queued triggers of eventID in firing order.
func (q *Queue) Pending(eventID string) []domain.Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Trigger
	for _, tt := range domain.TriggerTypes {
		if it, ok := q.byKey[domain.TriggerKey{EventID: eventID, Type: tt}]; ok {
			out = append(out, it.trigger)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Len returns the number of queued triggers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// NextFireAt returns the earliest queued fire time.
func (q *Queue) NextFireAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return time.Time{}, false
	}
	return q.heap[0].trigger.FireAt, true
}
