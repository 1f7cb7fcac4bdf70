package query

import (
	"sync"
	"time"

	"raicore.dev/ledger/consensus"
)

// BlockWaitingTTL is how long a deferred block stays in BlockWaiting
// before aging out (section 4.4: "entries age out after 3600 s").
const BlockWaitingTTL = 3600 * time.Second

type waitKey struct {
	account consensus.Account
	height  consensus.Height
}

// BlockWaiting maps (account, height) to blocks deferred because they
// depended on not-yet-available state (section 4.4). The Block
// Processor drains it for a given (account, height) once the
// dependency is satisfied (section 4.1 outcome 1's "drain
// waiting-for-this-block queue").
type BlockWaiting struct {
	mu      sync.Mutex
	entries map[waitKey][]*consensus.Block
	expires map[waitKey]time.Time
}

// NewBlockWaiting builds an empty store.
func NewBlockWaiting() *BlockWaiting {
	return &BlockWaiting{
		entries: make(map[waitKey][]*consensus.Block),
		expires: make(map[waitKey]time.Time),
	}
}

// Add parks b under (account, height) until DrainWaiting removes it or
// it ages out.
func (w *BlockWaiting) Add(now time.Time, account consensus.Account, height consensus.Height, b *consensus.Block) {
	k := waitKey{account: account, height: height}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[k] = append(w.entries[k], b)
	w.expires[k] = now.Add(BlockWaitingTTL)
}

// DrainWaiting returns and removes every block parked at (account,
// height); it implements processor.WaitingDrainer.
func (w *BlockWaiting) DrainWaiting(account consensus.Account, height consensus.Height) []*consensus.Block {
	k := waitKey{account: account, height: height}
	w.mu.Lock()
	defer w.mu.Unlock()
	blocks := w.entries[k]
	delete(w.entries, k)
	delete(w.expires, k)
	return blocks
}

// Sweep drops every entry whose TTL has elapsed as of now.
func (w *BlockWaiting) Sweep(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, exp := range w.expires {
		if !now.Before(exp) {
			delete(w.entries, k)
			delete(w.expires, k)
		}
	}
}
