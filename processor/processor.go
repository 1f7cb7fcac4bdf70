package processor

import (
	"log/slog"
	"sync"

	"raicore.dev/ledger/consensus"
	"raicore.dev/ledger/store"
)

// SyncRequester asks the gateway for the missing prefix of an
// account's chain (section 4.1, outcome 2/3: GAP_PREVIOUS).
type SyncRequester interface {
	RequestSync(account consensus.Account, fromHeight consensus.Height, count uint32)
}

// ElectionFeeder registers or augments the election for a contested
// (account, height) (section 4.1, outcomes 5/7; section 4.3 "Add").
type ElectionFeeder interface {
	Add(account consensus.Account, height consensus.Height, candidates ...*consensus.Block)
}

// WaitingDrainer returns, and removes, any blocks that had been parked
// waiting on the block just appended at (account, height) (section
// 4.1, outcome 1: "drain waiting-for-this-block queue").
type WaitingDrainer interface {
	DrainWaiting(account consensus.Account, height consensus.Height) []*consensus.Block
}

// noopSync, noopElection, and noopWaiting let Processor run usefully
// in tests or before the query/election/subscribe engines are wired
// in (section 5: each engine owns its own thread and is wired in by
// the node's orchestration layer).
type noopSync struct{}

func (noopSync) RequestSync(consensus.Account, consensus.Height, uint32) {}

type noopElection struct{}

func (noopElection) Add(consensus.Account, consensus.Height, ...*consensus.Block) {}

type noopWaiting struct{}

func (noopWaiting) DrainWaiting(consensus.Account, consensus.Height) []*consensus.Block { return nil }

// Processor is the Block Processor of section 4.1: the single-writer
// consumer of the priority action queue.
type Processor struct {
	log   *slog.Logger
	store *store.Store
	queue *Queue
	disp  *dispatcher

	sync      SyncRequester
	election  ElectionFeeder
	waiting   WaitingDrainer

	mu      sync.Mutex
	stopped bool
	halted  bool

	wg sync.WaitGroup
}

// Config wires the Processor's collaborators. Sync, Election, and
// Waiting default to no-ops so a Processor can be constructed and
// exercised (tests, early bring-up) before the rest of the node is
// assembled.
type Config struct {
	Log       *slog.Logger
	Store     *store.Store
	Observers []Observer
	Sync      SyncRequester
	Election  ElectionFeeder
	Waiting   WaitingDrainer
}

// New constructs a Processor. Run must be called (typically in its own
// goroutine, mirroring the dedicated processor thread of section 5) to
// start draining the queue.
func New(cfg Config) *Processor {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		log:      log,
		store:    cfg.Store,
		queue:    NewQueue(),
		disp:     newDispatcher(cfg.Observers),
		sync:     cfg.Sync,
		election: cfg.Election,
		waiting:  cfg.Waiting,
	}
	if p.sync == nil {
		p.sync = noopSync{}
	}
	if p.election == nil {
		p.election = noopElection{}
	}
	if p.waiting == nil {
		p.waiting = noopWaiting{}
	}
	return p
}

// Queue exposes the back-pressure gauge to upstream stages (section
// 4.1: "a soft back-pressure threshold... is exposed so upstream
// stages can pause ingestion").
func (p *Processor) Queue() *Queue { return p.queue }

// EnqueueAppend submits a received block at NORMAL priority (section
// 4.4: fresh gateway notify/ack traffic).
func (p *Processor) EnqueueAppend(b *consensus.Block, confirmed bool) {
	p.queue.Push(PriorityNormal, AppendAction{Block: b, Confirmed: confirmed})
}

// EnqueueAppendHigh submits a block that must win over a local
// competitor (section 4.1 outcome 7: "re-enqueue this incoming block
// at HIGH priority").
func (p *Processor) EnqueueAppendHigh(b *consensus.Block, confirmed bool) {
	p.queue.Push(PriorityHigh, AppendAction{Block: b, Confirmed: confirmed})
}

// EnqueueRollback submits an urgent rollback (section 4.1 outcome 7
// and the election engine's force-append path).
func (p *Processor) EnqueueRollback(account consensus.Account, hash consensus.BlockHash) {
	p.queue.Push(PriorityUrgent, RollbackAction{Account: account, Hash: hash})
}

// EnqueueQueryCallback submits a block delivered by the outbound query
// pipeline (section 6.3: blocks_query ack).
func (p *Processor) EnqueueQueryCallback(b *consensus.Block, confirmed bool) {
	p.queue.Push(PriorityNormal, QueryCallbackAction{Block: b, Confirmed: confirmed})
}

// Run drains the action queue until Stop is called. It is meant to run
// on its own goroutine (section 5: "one processor thread owns the
// action queue").
func (p *Processor) Run() {
	p.wg.Add(1)
	defer p.wg.Done()
	for {
		p.mu.Lock()
		halted := p.halted
		p.mu.Unlock()
		if halted {
			return
		}
		action, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.apply(action)
	}
}

func (p *Processor) apply(action Action) {
	switch a := action.(type) {
	case AppendAction:
		p.processAppend(a.Block, a.Confirmed)
	case QueryCallbackAction:
		p.processAppend(a.Block, a.Confirmed)
	case RollbackAction:
		p.processRollback(a.Account, a.Hash)
	}
}

// Stop signals the processor's queue and blocks until Run returns
// (section 5: "Stop() sets it and signals the condition variable...
// then the thread exits and is joined").
func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.queue.Stop()
	p.wg.Wait()
	p.disp.stop()
}

// halt implements outcome 9: a ledger-layer write failure stops the
// processor in the background (section 4.1). It is called on the first
// failed write transaction; failures are not retried or counted.
func (p *Processor) halt(err error) {
	p.log.Error("block processor halted on storage error", "error", err)
	p.mu.Lock()
	p.halted = true
	p.mu.Unlock()
	p.queue.Stop()
}
