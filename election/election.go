package election

import (
	"time"

	"raicore.dev/ledger/consensus"
)

// Election is the per-(account, height) contest of section 4.3: a set
// of candidate blocks, a vote from each representative that has
// weighed in, and the scheduling bookkeeping that drives the
// broadcast/tally loop.
type Election struct {
	Account consensus.Account
	Height  consensus.Height

	candidates map[consensus.BlockHash]*consensus.Block
	votes      map[consensus.Account]*RepVoteInfo

	fork bool

	rounds     int
	roundsFork int
	wins       int
	confirms   int
	winner     consensus.BlockHash

	broadcast bool
	alternate bool
	wakeup    time.Time
}

// newElection builds an Election over the given candidates (one
// candidate means "re-confirm this single block," per outcome 5's
// PREVIOUS_MISMATCH reaction; two or more means a genuine fork).
func newElection(account consensus.Account, height consensus.Height, now time.Time, candidates []*consensus.Block) *Election {
	e := &Election{
		Account:    account,
		Height:     height,
		candidates: make(map[consensus.BlockHash]*consensus.Block, len(candidates)),
		votes:      make(map[consensus.Account]*RepVoteInfo),
	}
	for _, c := range candidates {
		e.candidates[c.Hash()] = c
	}
	e.fork = len(e.candidates) > 1
	e.wakeup = now.Add(e.initialDelay())
	return e
}

func (e *Election) initialDelay() time.Duration {
	if e.fork {
		return consensus.ForkElectionDelay
	}
	return consensus.NonForkElectionDelay
}

// addCandidates merges in additional candidates (section 4.3:
// "Add(blocks) registers an election or augments an existing one").
// Transitioning from non-fork to fork re-arms the wakeup at
// FORK_ELECTION_DELAY, per section 4.3's "Initial delays."
func (e *Election) addCandidates(now time.Time, candidates []*consensus.Block) {
	wasFork := e.fork
	for _, c := range candidates {
		e.candidates[c.Hash()] = c
	}
	e.fork = len(e.candidates) > 1
	if e.fork && !wasFork {
		e.wakeup = now.Add(consensus.ForkElectionDelay)
	}
}

// Candidates returns a snapshot slice of the current candidate blocks.
func (e *Election) Candidates() []*consensus.Block {
	out := make([]*consensus.Block, 0, len(e.candidates))
	for _, c := range e.candidates {
		out = append(out, c)
	}
	return out
}

// recordVote applies one representative's vote, per section 4.3's
// conflict-detection rule: two votes from the same representative for
// different (hash, timestamp) pairs within MIN_CONFIRM_INTERVAL of
// each other mark that representative's weight as invalid for this
// election, whether or not the two votes name the same block (section
// 8: "Election idempotence" - an identical repeated (hash, timestamp)
// pair must not alter the tally).
func (e *Election) recordVote(rep consensus.Account, ts time.Time, sig consensus.Signature, hash consensus.BlockHash, weight consensus.Amount) {
	info, existed := e.votes[rep]
	if !existed {
		info = &RepVoteInfo{}
		e.votes[rep] = info
		info.Weight = weight
		info.LastVote = Vote{Timestamp: ts, Signature: sig, BlockHash: hash}
		return
	}

	if info.LastVote.BlockHash == hash && info.LastVote.Timestamp.Equal(ts) {
		// Identical repeat vote: idempotent, nothing to update.
		return
	}

	diff := ts.Sub(info.LastVote.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff < consensus.MinConfirmInterval {
		info.ConflictFound = true
	}

	if !ts.After(info.LastVote.Timestamp) {
		// A vote with a timestamp no later than the one already
		// recorded never supersedes it (section 5: "later timestamp by
		// same representative supersedes earlier only if they do not
		// conflict").
		return
	}
	info.Weight = weight
	info.LastVote = Vote{Timestamp: ts, Signature: sig, BlockHash: hash}
}

// recordConflict directly marks a representative's weight invalid for
// this election from an externally observed equivocation (section
// 4.3: "ProcessConflict records a representative-equivocation
// observation").
func (e *Election) recordConflict(rep consensus.Account, weight consensus.Amount) {
	info, existed := e.votes[rep]
	if !existed {
		info = &RepVoteInfo{Weight: weight}
		e.votes[rep] = info
	}
	info.ConflictFound = true
}
