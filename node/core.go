package node

import (
	"fmt"
	"log/slog"

	"raicore.dev/ledger/consensus"
	"raicore.dev/ledger/election"
	"raicore.dev/ledger/processor"
	"raicore.dev/ledger/query"
	"raicore.dev/ledger/store"
	"raicore.dev/ledger/subscribe"
)

func parseRepresentative(s string) (consensus.Account, error) {
	return consensus.ParseAccount(s)
}

// Core owns every long-running component of one node (section 5):
// the Ledger Store, Block Processor, Election Container, Query
// Scheduler, and subscription Table, each driven by its own goroutine.
type Core struct {
	cfg Config
	log *slog.Logger

	store      *store.Store
	processor  *processor.Processor
	container  *election.Container
	scheduler  *query.Scheduler
	cache      *query.BlockCache
	waiting    *query.BlockWaiting
	subs       *subscribe.Table
	alarm      *Alarm
}

// New opens the store and wires every component together, but starts
// nothing: call Run to start the goroutines.
func New(cfg Config, log *slog.Logger) (*Core, error) {
	if log == nil {
		log = slog.Default()
	}
	st, err := store.Open(DBPath(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}

	subs := subscribe.New(st)
	cache := query.NewBlockCache(cfg.BlockCacheMax)
	waiting := query.NewBlockWaiting()

	scheduler := query.NewScheduler(nil, cfg.QueryConcurrency)

	container := election.NewContainer(election.Config{
		Log:        log,
		RepWeights: st,
		Ledger:     st,
	})

	proc := processor.New(processor.Config{
		Log:       log,
		Store:     st,
		Observers: []processor.Observer{subs},
		Sync:      scheduler,
		Election:  container,
		Waiting:   waiting,
	})
	container.SetProcessor(proc)

	return &Core{
		cfg:       cfg,
		log:       log,
		store:     st,
		processor: proc,
		container: container,
		scheduler: scheduler,
		cache:     cache,
		waiting:   waiting,
		subs:      subs,
		alarm:     NewAlarm(log, cache, waiting, subs),
	}, nil
}

// Run starts every component's dedicated goroutine (section 5: "The
// Query engine runs its own worker, the Election engine its own...")
// and blocks until Stop is called.
func (c *Core) Run() {
	go c.processor.Run()
	go c.container.Run()
	go c.scheduler.Run()
	go c.alarm.Run()
}

// Stop shuts every component down in dependency order: stop feeding
// new work into the processor first, then the processor itself, so a
// halt mid-shutdown never races a still-running collaborator.
func (c *Core) Stop() {
	c.alarm.Stop()
	c.scheduler.Stop()
	c.container.Stop()
	c.processor.Stop()
	if err := c.store.Close(); err != nil {
		c.log.Error("store close", "error", err)
	}
}

// Store exposes the underlying Ledger Store, e.g. for a client RPC
// surface (section 6.4) wired in by the caller.
func (c *Core) Store() *store.Store { return c.store }

// Processor exposes the Block Processor, e.g. for a gateway Client to
// feed inbound blocks into (section 4.4).
func (c *Core) Processor() *processor.Processor { return c.processor }

// Subscriptions exposes the subscription Table for a client RPC
// surface to register/unregister interest against (section 6.4).
func (c *Core) Subscriptions() *subscribe.Table { return c.subs }

// Scheduler exposes the Query Scheduler so a gateway Client can be
// constructed with it and wired back in as the scheduler's
// GatewayClient (an unavoidable one-step wiring cycle: the scheduler
// is built before the gateway connection exists).
func (c *Core) Scheduler() *query.Scheduler { return c.scheduler }

// Cache exposes the BlockCache for a gateway Client's prefetch path.
func (c *Core) Cache() *query.BlockCache { return c.cache }
