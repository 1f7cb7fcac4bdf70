package gateway

import (
	"log/slog"
	"time"

	"raicore.dev/ledger/consensus"
)

// Conn is the narrow transport surface the Client needs; the node
// wires it to a real WebSocket connection (out of scope here per the
// spec's transport non-goal).
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Processor is the subset of the Block Processor the gateway feeds
// (section 4.4: "enqueued into the Block Processor at NORMAL
// priority").
type Processor interface {
	EnqueueAppend(b *consensus.Block, confirmed bool)
	EnqueueRollback(account consensus.Account, hash consensus.BlockHash)
}

// Scheduler is the subset of the outbound query engine the gateway
// notifies when a blocks_query ack arrives (section 4.4: "Remove
// cancels an in-flight query on ack").
type Scheduler interface {
	Remove(account consensus.Account, height consensus.Height)
}

// Cache receives the prefetch blocks carried on a successful
// blocks_query ack (section 4.4: BlockCache).
type Cache interface {
	Put(now time.Time, b *consensus.Block)
}

// VoteSigner produces this node's own representative vote, when it
// runs as a representative; a nil VoteSigner means the node never
// broadcasts votes (the common case: voting keys belong to the
// wallet/signing daemon, out of this subsystem's scope).
type VoteSigner interface {
	SignVote(hash consensus.BlockHash, timestamp int64) (rep consensus.Account, sig consensus.Signature, ok bool)
}

// Client drives one gateway connection: the single I/O reactor of
// section 5 that reads and writes the section-6.3 JSON protocol.
type Client struct {
	conn      Conn
	log       *slog.Logger
	processor Processor
	scheduler Scheduler
	cache     Cache
	signer    VoteSigner
}

// Config wires a Client's collaborators.
type Config struct {
	Conn      Conn
	Log       *slog.Logger
	Processor Processor
	Scheduler Scheduler
	Cache     Cache
	Signer    VoteSigner
}

// New constructs a Client. Run must be called to start its read loop.
func New(cfg Config) *Client {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		conn:      cfg.Conn,
		log:       log,
		processor: cfg.Processor,
		scheduler: cfg.Scheduler,
		cache:     cfg.Cache,
		signer:    cfg.Signer,
	}
}

// Subscribe re-subscribes to block_append and block_rollback, meant to
// be called on every (re)connect (section 4.4: "On reconnect the core
// re-subscribes to block_append and block_rollback").
func (c *Client) Subscribe() error {
	for _, event := range []string{"block_append", "block_rollback"} {
		msg, err := encodeEventSubscribe(event)
		if err != nil {
			return err
		}
		if err := c.conn.WriteMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendBlocksQuery implements query.GatewayClient.
func (c *Client) SendBlocksQuery(requestID string, account consensus.Account, height consensus.Height, count uint32) {
	msg, err := encodeBlocksQuery(requestID, account, height, count)
	if err != nil {
		c.log.Error("gateway: encode blocks_query", "error", err)
		return
	}
	if err := c.conn.WriteMessage(msg); err != nil {
		c.log.Error("gateway: send blocks_query", "error", err)
	}
}

// BroadcastConfirmRequest implements election.Broadcaster for a
// non-fork election's periodic confirm-request step. Without a
// configured VoteSigner, or with no candidates, the request is a
// no-op; otherwise it sends a vote for the first candidate.
func (c *Client) BroadcastConfirmRequest(account consensus.Account, height consensus.Height, candidates []*consensus.Block) {
	if c.signer == nil || len(candidates) == 0 {
		return
	}
	c.sendVote(candidates[0].Hash(), candidates[0])
}

// BroadcastVote implements election.Broadcaster for a fork election's
// periodic vote-rebroadcast step. The election only tracks the
// candidate's hash, so the outbound block_confirm carries no block
// body in this path; the upstream gateway can still resolve it from
// the hash it already holds.
func (c *Client) BroadcastVote(account consensus.Account, height consensus.Height, hash consensus.BlockHash) {
	if c.signer == nil {
		return
	}
	c.sendVote(hash, nil)
}

func (c *Client) sendVote(hash consensus.BlockHash, block *consensus.Block) {
	rep, sig, ok := c.signer.SignVote(hash, time.Now().Unix())
	if !ok {
		return
	}
	msg, err := encodeBlockConfirm(rep, time.Now().Unix(), sig, block)
	if err != nil {
		c.log.Error("gateway: encode block_confirm", "error", err)
		return
	}
	if err := c.conn.WriteMessage(msg); err != nil {
		c.log.Error("gateway: send block_confirm", "error", err)
	}
}

// Run reads inbound messages until the connection closes, dispatching
// each ack/notify per section 4.4.
func (c *Client) Run() {
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Error("gateway: connection closed", "error", err)
			return
		}
		env, err := decodeInbound(data)
		if err != nil {
			c.log.Warn("gateway: dropping malformed message", "error", err)
			continue
		}
		switch {
		case env.Ack != "":
			c.handleAck(env)
		case env.Notify != "":
			c.handleNotify(env)
		}
	}
}

func (c *Client) handleAck(env *inboundEnvelope) {
	switch env.Ack {
	case "blocks_query":
		if env.Status != "success" {
			return
		}
		if len(env.Blocks) == 0 {
			return
		}
		first, err := consensus.DecodeBlockJSON(env.Blocks[0])
		if err != nil {
			c.log.Warn("gateway: bad block in blocks_query ack", "error", err)
			return
		}
		c.scheduler.Remove(first.Account, first.Height)
		c.processor.EnqueueAppend(first, false)
		now := time.Now()
		for _, raw := range env.Blocks[1:] {
			blk, err := consensus.DecodeBlockJSON(raw)
			if err != nil {
				continue
			}
			c.cache.Put(now, blk)
		}
	case "block_confirm":
		if env.Block == nil {
			return
		}
		blk, err := consensus.DecodeBlockJSON(env.Block)
		if err != nil {
			return
		}
		switch env.Status {
		case "success":
			c.processor.EnqueueAppend(blk, env.Confirmed != nil && *env.Confirmed)
		case "fork":
			c.processor.EnqueueAppend(blk, false)
		case "rollback":
			c.processor.EnqueueRollback(blk.Account, blk.Hash())
		}
	}
}

func (c *Client) handleNotify(env *inboundEnvelope) {
	if env.Block == nil {
		return
	}
	blk, err := consensus.DecodeBlockJSON(env.Block)
	if err != nil {
		c.log.Warn("gateway: bad block in notify", "notify", env.Notify, "error", err)
		return
	}
	switch env.Notify {
	case "block_append":
		c.processor.EnqueueAppend(blk, false)
	case "block_confirm":
		c.processor.EnqueueAppend(blk, true)
	case "block_rollback":
		c.processor.EnqueueRollback(blk.Account, blk.Hash())
	}
}
