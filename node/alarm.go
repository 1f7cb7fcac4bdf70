package node

import (
	"log/slog"
	"time"
)

// sweepInterval drives the alarm's periodic aging pass across every
// TTL-bearing in-memory store (section 9: "aging is a periodic sweep
// driven by the alarm," not a per-entry timer).
const sweepInterval = 30 * time.Second

type sweepable interface {
	Sweep(now time.Time)
}

// Alarm is the node's single timer thread. It owns no state of its
// own; it only ticks every sweepable collaborator so none of them need
// their own goroutine.
type Alarm struct {
	log       *slog.Logger
	sweepers  []sweepable
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewAlarm builds an Alarm driving every given sweepable.
func NewAlarm(log *slog.Logger, sweepers ...sweepable) *Alarm {
	if log == nil {
		log = slog.Default()
	}
	return &Alarm{
		log:       log,
		sweepers:  sweepers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run ticks every sweepable until Stop is called.
func (a *Alarm) Run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			close(a.stoppedCh)
			return
		case now := <-ticker.C:
			for _, s := range a.sweepers {
				s.Sweep(now)
			}
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (a *Alarm) Stop() {
	close(a.stopCh)
	<-a.stoppedCh
}
