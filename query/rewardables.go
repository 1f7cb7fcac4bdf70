package query

import (
	"raicore.dev/ledger/consensus"
	"raicore.dev/ledger/store"
)

// RewardableAccount is one candidate returned by Rewardables: an
// account with outstanding send history (it is the source of at least
// one pending receivable) together with its current head balance.
// Original_source rai/node/rewarder.cpp computes this as a side index
// over send history for airdrop eligibility; reward issuance itself is
// the wallet/signing daemon's job (section 1 Non-goals) and is not
// implemented here.
type RewardableAccount struct {
	Account       consensus.Account
	PendingAmount consensus.Amount
	HeadBalance   consensus.Amount
}

// Rewardables scans the Ledger Store's receivables table for distinct
// source accounts and reports each alongside its total outstanding
// pending amount and current head balance, for the client RPC
// "rewardables" action (section 6.4). It does no reward issuance or
// eligibility scoring beyond surfacing the candidates.
func Rewardables(st *store.Store) ([]RewardableAccount, error) {
	totals := make(map[consensus.Account]consensus.Amount)
	order := make([]consensus.Account, 0)

	err := st.View(func(t *store.Txn) error {
		return t.ScanAllReceivables(func(_ consensus.Account, _ consensus.BlockHash, r *store.Receivable) error {
			sum, ok := totals[r.Source]
			if !ok {
				order = append(order, r.Source)
				sum = consensus.Amount{}
			}
			added, overflowed := sum.Add(r.Amount)
			if overflowed {
				added = consensus.Amount{Hi: ^uint64(0), Lo: ^uint64(0)}
			}
			totals[r.Source] = added
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]RewardableAccount, 0, len(order))
	for _, account := range order {
		_, height, ok, err := st.AccountHead(account)
		if err != nil {
			return nil, err
		}
		var balance consensus.Amount
		if ok {
			blk, found, err := st.BlockAtHeight(account, height)
			if err != nil {
				return nil, err
			}
			if found {
				balance = blk.Balance
			}
		}
		out = append(out, RewardableAccount{
			Account:       account,
			PendingAmount: totals[account],
			HeadBalance:   balance,
		})
	}
	return out, nil
}
