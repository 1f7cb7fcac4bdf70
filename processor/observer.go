package processor

import (
	"raicore.dev/ledger/consensus"
)

// Observer receives post-commit notifications (section 4.1: "Observers
// emitted (post-commit)"). Implementations must not block: the
// dispatcher delivers off the write path but still serially, one
// event at a time (section 9, "Observer callbacks vs. ownership
// cycles").
type Observer interface {
	BlockAppend(b *consensus.Block, confirmed bool)
	BlockConfirm(b *consensus.Block, previousConfirmedHeight consensus.Height)
	BlockRollback(b *consensus.Block)
	BlockDrop(b *consensus.Block, code consensus.ErrorCode)
	ForkAdd(first, second *consensus.Block)
	ForkDelete(first, second *consensus.Block)
}

type eventKind int

const (
	eventAppend eventKind = iota
	eventConfirm
	eventRollback
	eventDrop
	eventForkAdd
	eventForkDelete
)

type event struct {
	kind           eventKind
	block          *consensus.Block
	confirmed      bool
	prevConfirmedH consensus.Height
	code           consensus.ErrorCode
	second         *consensus.Block
}

// dispatcher delivers events to registered observers on its own
// goroutine, so that firing an observer never happens synchronously
// inside a ledger write transaction (section 9).
type dispatcher struct {
	observers []Observer
	events    chan event
	done      chan struct{}
}

func newDispatcher(observers []Observer) *dispatcher {
	d := &dispatcher{
		observers: observers,
		events:    make(chan event, 4096),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for ev := range d.events {
		for _, o := range d.observers {
			switch ev.kind {
			case eventAppend:
				o.BlockAppend(ev.block, ev.confirmed)
			case eventConfirm:
				o.BlockConfirm(ev.block, ev.prevConfirmedH)
			case eventRollback:
				o.BlockRollback(ev.block)
			case eventDrop:
				o.BlockDrop(ev.block, ev.code)
			case eventForkAdd:
				o.ForkAdd(ev.block, ev.second)
			case eventForkDelete:
				o.ForkDelete(ev.block, ev.second)
			}
		}
	}
	close(d.done)
}

func (d *dispatcher) emit(ev event) { d.events <- ev }

// stop closes the event channel and waits for the dispatcher goroutine
// to drain it.
func (d *dispatcher) stop() {
	close(d.events)
	<-d.done
}
