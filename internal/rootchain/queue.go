package rootchain

import (
	"container/heap"
	"fmt"

	"github.com/holiman/uint256"
)

// priorityHeap implements heap.Interface as a min-heap of priority keys
type priorityHeap []*uint256.Int

func (h priorityHeap) Len() int           { return len(h) }
func (h priorityHeap) Less(i, j int) bool { return h[i].Lt(h[j]) }
func (h priorityHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*uint256.Int))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ExitQueue is the in-memory view of the pending exits, ordered by priority.
// The durable copy lives in the store; the queue is only changed after the
// matching batch has been written, so both always agree.
type ExitQueue struct {
	h      priorityHeap
	queued map[[32]byte]struct{}
}

// NewExitQueue builds a queue over the given keys
func NewExitQueue(keys []*uint256.Int) *ExitQueue {
	q := &ExitQueue{
		h:      make(priorityHeap, 0, len(keys)),
		queued: make(map[[32]byte]struct{}, len(keys)),
	}
	for _, k := range keys {
		if q.Contains(k) {
			continue
		}
		q.h = append(q.h, new(uint256.Int).Set(k))
		q.queued[k.Bytes32()] = struct{}{}
	}
	heap.Init(&q.h)
	return q
}

// Insert adds key. Inserting a key twice is a programming error.
func (q *ExitQueue) Insert(key *uint256.Int) {
	if q.Contains(key) {
		panic(fmt.Sprintf("exit queue: duplicate priority %s", key.Dec()))
	}
	q.queued[key.Bytes32()] = struct{}{}
	heap.Push(&q.h, new(uint256.Int).Set(key))
}

// PeekMin returns the smallest key without removing it
func (q *ExitQueue) PeekMin() (*uint256.Int, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return new(uint256.Int).Set(q.h[0]), true
}

// PopMin removes and returns the smallest key
func (q *ExitQueue) PopMin() (*uint256.Int, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	key := heap.Pop(&q.h).(*uint256.Int)
	delete(q.queued, key.Bytes32())
	return key, true
}

// Contains reports whether key is queued
func (q *ExitQueue) Contains(key *uint256.Int) bool {
	_, ok := q.queued[key.Bytes32()]
	return ok
}

// Len returns the number of queued keys
func (q *ExitQueue) Len() int {
	return len(q.h)
}
