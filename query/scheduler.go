package query

import (
	"fmt"
	"sync"
	"time"

	"raicore.dev/ledger/consensus"
)

// Concurrency is the outbound query engine's cap on simultaneously
// in-flight queries (section 4.4: "Concurrency cap: CONCURRENCY
// simultaneously in-flight queries").
const Concurrency = 8

// GatewayClient is the narrow outbound surface the scheduler needs
// from the gateway connection (section 6.3: the blocks_query action).
type GatewayClient interface {
	SendBlocksQuery(requestID string, account consensus.Account, height consensus.Height, count uint32)
}

type pendingEntry struct {
	height consensus.Height
	count  uint32
}

type inflightEntry struct {
	height    consensus.Height
	count     uint32
	retries   int
	wakeup    time.Time
	requestID string
}

// Scheduler is the bounded-concurrency outbound block query engine of
// section 4.4. It implements processor.SyncRequester.
type Scheduler struct {
	gateway     GatewayClient
	concurrency int

	mu        sync.Mutex
	pending   map[consensus.Account]*pendingEntry
	inflight  map[consensus.Account]*inflightEntry
	nextReqID uint64

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewScheduler builds a Scheduler bound to gateway, with the given
// concurrency cap (Concurrency if <= 0).
func NewScheduler(gateway GatewayClient, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = Concurrency
	}
	return &Scheduler{
		gateway:     gateway,
		concurrency: concurrency,
		pending:     make(map[consensus.Account]*pendingEntry),
		inflight:    make(map[consensus.Account]*inflightEntry),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
}

// SetGateway wires the gateway connection after construction, since
// the scheduler is built before the gateway Client exists (the Client
// itself takes this scheduler as its gateway.Scheduler).
// Call it once, before Run.
func (s *Scheduler) SetGateway(gateway GatewayClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = gateway
}

// RequestSync implements processor.SyncRequester: it is the Block
// Processor's reaction to GAP_PREVIOUS (section 4.1, outcomes 2/3).
func (s *Scheduler) RequestSync(account consensus.Account, fromHeight consensus.Height, count uint32) {
	s.Add(account, fromHeight, count)
}

// Add merges a query request into the pending set, lowering the
// requested height if the new request starts earlier (section 4.4:
// "Add(account, height, count) merges into a pending entry, lowering
// height if the new request is earlier").
func (s *Scheduler) Add(account consensus.Account, height consensus.Height, count uint32) {
	if count == 0 {
		count = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pending[account]; ok {
		if height < e.height {
			e.height = height
		}
		if count > e.count {
			e.count = count
		}
		return
	}
	s.pending[account] = &pendingEntry{height: height, count: count}
}

// Remove cancels an in-flight query for account on ack (section 4.4:
// "Remove(account, height) cancels an in-flight query on ack").
func (s *Scheduler) Remove(account consensus.Account, height consensus.Height) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.inflight[account]; ok && e.height == height {
		delete(s.inflight, account)
	}
}

// Run drives the scheduler until Stop is called (section 5: "one
// query thread owns the outbound query scheduler").
func (s *Scheduler) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			close(s.stoppedCh)
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for account, e := range s.inflight {
		if now.Before(e.wakeup) {
			continue
		}
		e.retries++
		e.wakeup = now.Add(backoff(e.retries))
		s.send(account, e)
	}

	for len(s.inflight) < s.concurrency && len(s.pending) > 0 {
		var account consensus.Account
		var e *pendingEntry
		for a, pe := range s.pending {
			account, e = a, pe
			break
		}
		delete(s.pending, account)
		ie := &inflightEntry{height: e.height, count: e.count, wakeup: now.Add(backoff(0))}
		s.inflight[account] = ie
		s.send(account, ie)
	}
}

// backoff implements section 4.4's "delay = min(60, 5 + retries)
// seconds."
func backoff(retries int) time.Duration {
	d := 5 + retries
	if d > 60 {
		d = 60
	}
	return time.Duration(d) * time.Second
}

func (s *Scheduler) send(account consensus.Account, e *inflightEntry) {
	if s.gateway == nil {
		return
	}
	s.nextReqID++
	e.requestID = fmt.Sprintf("q-%d", s.nextReqID)
	s.gateway.SendBlocksQuery(e.requestID, account, e.height, e.count)
}
