package election

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"raicore.dev/ledger/consensus"
)

type key struct {
	account consensus.Account
	height  consensus.Height
}

// RepWeightSource gives the election container read access to the
// live representative-weight tally (section 4.2's cache).
type RepWeightSource interface {
	RepWeight(rep consensus.Account) consensus.Amount
	RepWeightTotal() consensus.Amount
}

// LedgerReader gives the container just enough ledger access to know
// which candidate is the account's current local head, needed to
// force-append a fork winner (section 4.3, "force-appended locally
// (overriding the existing head via a rollback)").
type LedgerReader interface {
	AccountHead(account consensus.Account) (hash consensus.BlockHash, height consensus.Height, ok bool, err error)
}

// ProcessorOps is the subset of the Block Processor the election
// engine drives: rolling back a superseded head and re-submitting the
// winner (section 4.3, "Observers call the Block Processor to
// force-append or force-confirm").
type ProcessorOps interface {
	EnqueueRollback(account consensus.Account, hash consensus.BlockHash)
	EnqueueAppendHigh(b *consensus.Block, confirmed bool)
}

// Broadcaster sends the election's outbound gateway traffic (section
// 4.3 scheduling loop: confirm-requests for a non-fork election, votes
// for a fork election).
type Broadcaster interface {
	BroadcastConfirmRequest(account consensus.Account, height consensus.Height, candidates []*consensus.Block)
	BroadcastVote(account consensus.Account, height consensus.Height, blockHash consensus.BlockHash)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastConfirmRequest(consensus.Account, consensus.Height, []*consensus.Block) {
}
func (noopBroadcaster) BroadcastVote(consensus.Account, consensus.Height, consensus.BlockHash) {}

// onlineRecencyWindow bounds how long a representative that has
// recently voted or conflicted still counts toward "online weight" in
// the win condition (section 4.3's "online" term, not otherwise
// defined in the spec); twice the timestamp-validity window is the
// natural choice since a vote older than that already carries zero
// weight factor.
const onlineRecencyWindow = 2 * consensus.MaxTimestampDiff

// Container is the election engine's "container" of section 5: it
// owns every live Election and the single scheduling loop that ticks
// them.
type Container struct {
	log         *slog.Logger
	repWeights  RepWeightSource
	ledger      LedgerReader
	processor   ProcessorOps
	broadcaster Broadcaster

	mu         sync.Mutex
	elections  map[key]*Election
	lastSeen   map[consensus.Account]time.Time
	stopped    bool
	stopCh     chan struct{}
	stoppedCh  chan struct{}
}

// Config wires the Container's collaborators.
type Config struct {
	Log         *slog.Logger
	RepWeights  RepWeightSource
	Ledger      LedgerReader
	Processor   ProcessorOps
	Broadcaster Broadcaster
}

// NewContainer constructs an empty election container. Run must be
// called (on its own goroutine, mirroring section 5's dedicated
// election thread) to drive the scheduling loop.
func NewContainer(cfg Config) *Container {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	b := cfg.Broadcaster
	if b == nil {
		b = noopBroadcaster{}
	}
	return &Container{
		log:         log,
		repWeights:  cfg.RepWeights,
		ledger:      cfg.Ledger,
		processor:   cfg.Processor,
		broadcaster: b,
		elections:   make(map[key]*Election),
		lastSeen:    make(map[consensus.Account]time.Time),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
}

// SetProcessor wires the Block Processor collaborator after
// construction, breaking the construction-order cycle between
// Processor (which needs an ElectionFeeder) and Container (which
// needs a ProcessorOps to force-append/force-confirm). Call it once,
// before Run.
func (c *Container) SetProcessor(p ProcessorOps) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processor = p
}

// Add registers an election for (account, height), or augments an
// existing one with additional candidates (section 4.3, "Add(blocks)
// registers an election (or augments an existing one)"). It
// implements processor.ElectionFeeder.
func (c *Container) Add(account consensus.Account, height consensus.Height, candidates ...*consensus.Block) {
	if len(candidates) == 0 {
		return
	}
	now := time.Now()
	k := key{account: account, height: height}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.elections[k]
	if !ok {
		e = newElection(account, height, now, candidates)
		c.elections[k] = e
		return
	}
	e.addCandidates(now, candidates)
}

// ProcessConfirm records a representative's vote (section 4.3,
// "ProcessConfirm(rep, timestamp, signature, block, weight)").
func (c *Container) ProcessConfirm(account consensus.Account, height consensus.Height, rep consensus.Account, ts time.Time, sig consensus.Signature, hash consensus.BlockHash, weight consensus.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen[rep] = ts
	e, ok := c.elections[key{account: account, height: height}]
	if !ok {
		return
	}
	e.recordVote(rep, ts, sig, hash, weight)
	if e.fork && !weight.IsZero() {
		// A new vote from a weighted representative in a live fork is
		// rebroadcast so peers converge faster (section 4.3: "on new
		// votes from heavy reps in a fork, rebroadcasts").
		c.broadcaster.BroadcastVote(account, height, hash)
	}
}

// ProcessConflict records a representative-equivocation observation
// (section 4.3, "ProcessConflict(rep, t1, t2, sig1, sig2, block1,
// block2, weight)"); the two timestamps/signatures/blocks are not
// separately retained, since the only effect on tallying is that the
// representative's weight is marked invalid for this election.
func (c *Container) ProcessConflict(account consensus.Account, height consensus.Height, rep consensus.Account, weight consensus.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen[rep] = time.Now()
	e, ok := c.elections[key{account: account, height: height}]
	if !ok {
		return
	}
	e.recordConflict(rep, weight)
}

// Run drives the scheduling loop of section 4.3 until Stop is called
// (section 5: "one election thread owns the election container and
// the voting state machine").
func (c *Container) Run() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			close(c.stoppedCh)
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (c *Container) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()
	close(c.stopCh)
	<-c.stoppedCh
}

func (c *Container) tick(now time.Time) {
	c.mu.Lock()
	due := make([]*Election, 0)
	for _, e := range c.elections {
		if !now.Before(e.wakeup) {
			due = append(due, e)
		}
	}
	c.mu.Unlock()
	for _, e := range due {
		c.processWakeup(e, now)
	}
}

func (c *Container) processWakeup(e *Election, now time.Time) {
	c.mu.Lock()
	fork := e.fork
	alternate := e.alternate
	e.alternate = !alternate
	account, height := e.Account, e.Height
	candidates := e.Candidates()
	c.mu.Unlock()

	if !fork {
		if alternate {
			c.broadcaster.BroadcastConfirmRequest(account, height, candidates)
		} else {
			c.mu.Lock()
			e.rounds++
			c.mu.Unlock()
		}
		c.mu.Lock()
		rounds := e.rounds
		c.mu.Unlock()
		c.reschedule(e, now, consensus.NonForkElectionInterval, rounds)
		return
	}

	if alternate {
		c.mu.Lock()
		winner := e.winner
		c.mu.Unlock()
		c.broadcaster.BroadcastVote(account, height, winner)
	} else {
		c.progressFork(e, now)
	}
	c.mu.Lock()
	roundsFork := e.roundsFork
	c.mu.Unlock()
	c.reschedule(e, now, consensus.ForkElectionInterval, roundsFork)
}

// reschedule applies the delay-growth rule of section 4.3's
// scheduling loop: delay doubles every 5 rounds, capped at 2^8 times
// the base interval, then jittered by up to +/-25%.
func (c *Container) reschedule(e *Election, now time.Time, base time.Duration, rounds int) {
	doublings := rounds / 5
	if doublings > 8 {
		doublings = 8
	}
	delay := base << uint(doublings)
	jitter := time.Duration(rand.Int63n(int64(delay)/2)) - delay/4
	c.mu.Lock()
	e.wakeup = now.Add(delay + jitter)
	c.mu.Unlock()
}

func (c *Container) onlineWeight(now time.Time) consensus.Amount {
	c.mu.Lock()
	reps := make([]consensus.Account, 0, len(c.lastSeen))
	for rep, seen := range c.lastSeen {
		if now.Sub(seen) <= onlineRecencyWindow {
			reps = append(reps, rep)
		}
	}
	c.mu.Unlock()
	total := consensus.ZeroAmount
	for _, rep := range reps {
		w := c.repWeights.RepWeight(rep)
		if sum, overflow := total.Add(w); !overflow {
			total = sum
		}
	}
	return total
}

// progressFork tallies the election and applies section 4.3's
// force-append / force-confirm rules.
func (c *Container) progressFork(e *Election, now time.Time) {
	total := c.repWeights.RepWeightTotal()
	online := c.onlineWeight(now)

	c.mu.Lock()
	result := Tally(e, now, total, online)
	e.roundsFork++
	if result.Win && result.HasWinner {
		if e.winner == result.Winner && e.wins > 0 {
			e.wins++
		} else {
			e.winner = result.Winner
			e.wins = 1
		}
	} else {
		e.wins = 0
	}
	if result.Confirm {
		e.confirms++
	} else {
		e.confirms = 0
	}
	winnerHash := e.winner
	winnerBlock := e.candidates[winnerHash]
	wins := e.wins
	confirms := e.confirms
	account, height := e.Account, e.Height
	c.mu.Unlock()

	if winnerBlock == nil {
		return
	}
	if confirms >= consensus.ForkElectionRoundsThreshold {
		c.forceConfirm(account, height, winnerBlock)
		c.remove(account, height)
		return
	}
	if wins >= consensus.ForkElectionRoundsThreshold {
		c.forceAppend(account, height, winnerBlock)
	}
}

// forceAppend overrides the account's current local head with winner
// (section 4.3: "force-appended locally (overriding the existing head
// via a rollback)"). Each call rolls back the account's current head
// block (unless it is winner) and re-submits winner. When the
// contested height lies below the head, each later round that still
// reaches the wins threshold rolls back one more head block, until the
// contested height is the head.
func (c *Container) forceAppend(account consensus.Account, height consensus.Height, winner *consensus.Block) {
	headHash, headHeight, ok, err := c.ledger.AccountHead(account)
	if err != nil || !ok || headHeight < height {
		return
	}
	if headHash == winner.Hash() {
		return
	}
	c.processor.EnqueueRollback(account, headHash)
	c.processor.EnqueueAppendHigh(winner, false)
}

// forceConfirm submits winner as confirmed (section 4.3: "N
// consecutive confirms... force-confirm it").
func (c *Container) forceConfirm(account consensus.Account, height consensus.Height, winner *consensus.Block) {
	c.processor.EnqueueAppendHigh(winner, true)
}

func (c *Container) remove(account consensus.Account, height consensus.Height) {
	c.mu.Lock()
	delete(c.elections, key{account: account, height: height})
	c.mu.Unlock()
}
