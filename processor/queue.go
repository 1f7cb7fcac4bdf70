// Package processor implements the Block Processor of section 4.1: the
// single-writer priority action queue and the append/rollback state
// machines that drive the Ledger Store through legal transitions.
package processor

import (
	"container/heap"
	"sync"

	"raicore.dev/ledger/consensus"
)

// Priority is one of three levels, highest first (section 4.1).
type Priority int

const (
	PriorityUrgent Priority = iota // rollbacks, forced reorgs
	PriorityHigh                   // confirmed-block retries after fork resolution
	PriorityNormal                 // freshly received blocks
)

// BackPressureThreshold is the soft queue-depth limit upstream stages
// should watch (section 4.1: "~100 000 queued actions").
const BackPressureThreshold = 100_000

// Action is one unit of work the processor's worker drains and
// applies. The three concrete kinds are AppendAction, RollbackAction,
// and QueryCallbackAction.
type Action interface {
	isAction()
}

// AppendAction carries a block to append, with the gateway's
// confirmation flag.
type AppendAction struct {
	Block     *consensus.Block
	Confirmed bool
}

func (AppendAction) isAction() {}

// RollbackAction requests rolling back the given account's current
// head, which must equal Hash.
type RollbackAction struct {
	Account consensus.Account
	Hash    consensus.BlockHash
}

func (RollbackAction) isAction() {}

// QueryCallbackAction re-delivers a block that arrived via the
// outbound query pipeline (section 6.3: blocks_query ack).
type QueryCallbackAction struct {
	Block     *consensus.Block
	Confirmed bool
}

func (QueryCallbackAction) isAction() {}

type queueItem struct {
	priority Priority
	seq      uint64
	action   Action
}

// itemHeap orders by (priority, seq): lower Priority value sorts
// first (PriorityUrgent < PriorityHigh < PriorityNormal), FIFO within
// a priority via the monotonic sequence number.
type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the bounded-priority action queue of section 4.1, guarded
// by a mutex + condition variable per section 5.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   itemHeap
	nextSeq uint64
	stopped bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues action at the given priority and wakes one waiting
// consumer.
func (q *Queue) Push(priority Priority, action Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	heap.Push(&q.items, &queueItem{priority: priority, seq: q.nextSeq, action: action})
	q.nextSeq++
	q.cond.Signal()
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// BackPressured reports whether the queue is at or above
// BackPressureThreshold, so upstream stages can pause ingestion
// (section 4.1).
func (q *Queue) BackPressured() bool {
	return q.Len() >= BackPressureThreshold
}

// Pop blocks on "actions_empty" (section 5) until an action is
// available or the queue is stopped, in which case ok is false.
func (q *Queue) Pop() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.stopped {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.action, true
}

// Stop marks the queue stopped and wakes every blocked Pop (section 5:
// "Stop() sets it and signals the condition variable"). Later Pushes
// are ignored; Pop keeps returning already-queued actions until the
// queue is empty and then returns ok=false.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}
