// Package election implements the Election Engine of section 4.3: the
// vote-tally state machine that decides which of several candidate
// blocks at a contested (account, height) the local node treats as
// canonical, using timestamp-decay-weighted representative votes.
package election

import (
	"time"

	"raicore.dev/ledger/consensus"
)

// Vote is a single representative vote (section 4.3: "Vote:
// (timestamp, signature, block_hash)").
type Vote struct {
	Timestamp time.Time
	Signature consensus.Signature
	BlockHash consensus.BlockHash
}

// RepVoteInfo is the per-representative bookkeeping an Election keeps
// (section 4.3: "RepVoteInfo: (conflict_found, weight, last_vote)").
type RepVoteInfo struct {
	ConflictFound bool
	Weight        consensus.Amount
	LastVote      Vote
}
