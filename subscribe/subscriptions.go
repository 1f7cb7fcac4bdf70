// Package subscribe implements the client-facing subscription fabric
// of section 4.4: a mapping from Account to most-recent subscription
// timestamp, and the idempotent confirm-event backfill that walks
// successor links to cover every block a client would otherwise have
// missed between subscriptions.
package subscribe

import (
	"sync"
	"time"

	"raicore.dev/ledger/consensus"
)

// LedgerReader is the narrow read surface the backfill walk needs from
// the store.
type LedgerReader interface {
	BlockAtHeight(account consensus.Account, height consensus.Height) (*consensus.Block, bool, error)
}

// ClientConn is the narrow push surface a subscriber connection
// exposes; the node wires it to a real client WebSocket.
type ClientConn interface {
	Notify(event string, b *consensus.Block) error
}

type subscription struct {
	conn     ClientConn
	lastSeen time.Time
}

// Table holds the Account -> most-recent-subscription mapping
// (section 4.4: "Subscriptions expire after CUTOFF_TIME if not
// refreshed"). It implements processor.Observer for BlockConfirm,
// delivering notifications to any subscriber whose account matches
// the confirmed block's account or link-target.
type Table struct {
	ledger LedgerReader

	mu   sync.Mutex
	subs map[consensus.Account]map[*subscription]struct{}
	conn map[consensus.Account][]*subscription
}

// New builds an empty subscription table bound to ledger for the
// backfill walk.
func New(ledger LedgerReader) *Table {
	return &Table{
		ledger: ledger,
		subs:   make(map[consensus.Account]map[*subscription]struct{}),
		conn:   make(map[consensus.Account][]*subscription),
	}
}

// Subscribe registers conn's interest in account as of now, refreshing
// an existing subscription if one exists (section 6.4:
// account_subscribe).
func (t *Table) Subscribe(now time.Time, account consensus.Account, conn ClientConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := t.find(account, conn)
	if sub == nil {
		sub = &subscription{conn: conn}
		t.conn[account] = append(t.conn[account], sub)
	}
	sub.lastSeen = now
}

// Unsubscribe removes conn's interest in account (section 6.4:
// account_unsubscribe).
func (t *Table) Unsubscribe(account consensus.Account, conn ClientConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.conn[account]
	for i, sub := range list {
		if sub.conn == conn {
			t.conn[account] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (t *Table) find(account consensus.Account, conn ClientConn) *subscription {
	for _, sub := range t.conn[account] {
		if sub.conn == conn {
			return sub
		}
	}
	return nil
}

// Sweep drops subscriptions that have not been refreshed within
// CutoffTime, driven by the node's alarm.
func (t *Table) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for account, list := range t.conn {
		kept := list[:0]
		for _, sub := range list {
			if now.Sub(sub.lastSeen) <= consensus.CutoffTime {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(t.conn, account)
		} else {
			t.conn[account] = kept
		}
	}
}

func (t *Table) subscribersFor(account consensus.Account) []ClientConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.conn[account]
	if len(list) == 0 {
		return nil
	}
	out := make([]ClientConn, len(list))
	for i, sub := range list {
		out[i] = sub.conn
	}
	return out
}

// BlockAppend implements processor.Observer; subscriptions only care
// about confirmations.
func (t *Table) BlockAppend(b *consensus.Block, confirmed bool) {}

// BlockConfirm implements processor.Observer (section 4.4: "Idempotent
// observer semantics"). It delivers the newly confirmed block plus a
// backfill of every previously unconfirmed block between
// previousConfirmedHeight+1 and b.Height, walking forward via
// successor links, to both account subscribers and link-target
// subscribers (the receiving side of a send).
func (t *Table) BlockConfirm(b *consensus.Block, previousConfirmedHeight consensus.Height) {
	if b.Height > previousConfirmedHeight+1 {
		for h := previousConfirmedHeight + 1; h < b.Height; h++ {
			blk, ok, err := t.ledger.BlockAtHeight(b.Account, h)
			if err != nil || !ok {
				continue
			}
			t.deliver(blk)
		}
	}
	t.deliver(b)
}

// BlockRollback implements processor.Observer.
func (t *Table) BlockRollback(b *consensus.Block) {
	for _, conn := range t.subscribersFor(b.Account) {
		_ = conn.Notify("block_rollback", b)
	}
}

// BlockDrop implements processor.Observer; dropped blocks never reach
// subscribers.
func (t *Table) BlockDrop(b *consensus.Block, code consensus.ErrorCode) {}

// ForkAdd implements processor.Observer; fork notices are not part of
// the client subscription surface.
func (t *Table) ForkAdd(first, second *consensus.Block) {}

// ForkDelete implements processor.Observer.
func (t *Table) ForkDelete(first, second *consensus.Block) {}

func (t *Table) deliver(b *consensus.Block) {
	seen := make(map[ClientConn]struct{})
	for _, conn := range t.subscribersFor(b.Account) {
		if _, dup := seen[conn]; dup {
			continue
		}
		seen[conn] = struct{}{}
		_ = conn.Notify("block_confirm", b)
	}
	if b.Opcode != consensus.OpSend {
		return
	}
	if link := b.LinkAsAccount(); !link.IsZero() && link != b.Account {
		for _, conn := range t.subscribersFor(link) {
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			_ = conn.Notify("block_confirm", b)
		}
	}
}
