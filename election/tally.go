package election

import (
	"math/big"
	"sort"
	"time"

	"raicore.dev/ledger/consensus"
)

// WeightFactor computes the timestamp-decay weight factor in percent
// for a vote cast at t, observed at wall-clock now (section 4.3,
// "Timestamp-weight factor" table). D = MAX_TIMESTAMP_DIFF.
func WeightFactor(t, now time.Time) int {
	d := consensus.MaxTimestampDiff
	diff := t.Sub(now)
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	if abs <= d {
		return 100
	}
	if diff < 0 {
		// now - 2D < t <= now - D: ramp 0 -> 100 as t moves from now-2D
		// toward now-D.
		if diff <= -2*d {
			return 0
		}
		frac := float64(diff+2*d) / float64(d)
		return int(frac * 100)
	}
	// now + D < t <= now + 2D: ramp 100 -> 0.
	if diff > 2*d {
		return 0
	}
	frac := float64(2*d-diff) / float64(d)
	return int(frac * 100)
}

// TallyResult is the outcome of tallying one election's votes (section
// 4.3, "Tally").
type TallyResult struct {
	Winner    consensus.BlockHash
	HasWinner bool
	Confirm   bool
	Win       bool
}

// Tally sums weight*factor/100 of non-conflicting votes per candidate,
// determines confirm/win per section 4.3, and breaks sum ties in favor
// of the lexicographically larger hash.
func Tally(e *Election, now time.Time, total, online consensus.Amount) TallyResult {
	sums := make(map[consensus.BlockHash]*big.Int, len(e.candidates))
	for hash := range e.candidates {
		sums[hash] = big.NewInt(0)
	}

	votingWeight := big.NewInt(0)
	for _, info := range e.votes {
		if info.ConflictFound {
			continue
		}
		if _, known := sums[info.LastVote.BlockHash]; !known {
			continue
		}
		factor := WeightFactor(info.LastVote.Timestamp, now)
		contribution := new(big.Int).Mul(info.Weight.BigInt(), big.NewInt(int64(factor)))
		contribution.Div(contribution, big.NewInt(100))
		sums[info.LastVote.BlockHash].Add(sums[info.LastVote.BlockHash], contribution)
		votingWeight.Add(votingWeight, info.Weight.BigInt())
	}

	type ranked struct {
		hash consensus.BlockHash
		sum  *big.Int
	}
	list := make([]ranked, 0, len(sums))
	for h, s := range sums {
		list = append(list, ranked{hash: h, sum: s})
	}
	sort.Slice(list, func(i, j int) bool {
		c := list[i].sum.Cmp(list[j].sum)
		if c != 0 {
			return c > 0
		}
		return list[j].hash.Less(list[i].hash)
	})

	var result TallyResult
	if len(list) == 0 {
		return result
	}
	result.Winner = list[0].hash
	result.HasWinner = true

	first := list[0].sum
	second := big.NewInt(0)
	if len(list) > 1 {
		second = list[1].sum
	}

	totalBig := total.BigInt()
	onlineBig := online.BigInt()
	confirmThreshold := new(big.Int).Mul(totalBig, big.NewInt(consensus.ConfirmWeightPercent))

	result.Confirm = new(big.Int).Mul(first, big.NewInt(100)).Cmp(confirmThreshold) > 0

	notVoting := new(big.Int).Sub(totalBig, votingWeight)
	if notVoting.Sign() < 0 {
		notVoting = big.NewInt(0)
	}
	onlineMajority := new(big.Int).Mul(onlineBig, big.NewInt(100)).Cmp(confirmThreshold) > 0
	firstBeatsSecondPlusIdle := first.Cmp(new(big.Int).Add(second, notVoting)) > 0

	votingMajority := new(big.Int).Mul(votingWeight, big.NewInt(100)).Cmp(confirmThreshold) > 0
	longFork := e.roundsFork > 2*consensus.ForkElectionRoundsThreshold && first.Cmp(second) > 0

	result.Win = result.Confirm ||
		(onlineMajority && firstBeatsSecondPlusIdle) ||
		(votingMajority && longFork)

	return result
}
