package processor

import (
	"raicore.dev/ledger/consensus"
	"raicore.dev/ledger/store"
)

type rollbackPost struct {
	code  consensus.ErrorCode
	block *consensus.Block
}

// processRollback runs the rollback state machine of section 4.1 for
// the account's current head, expected to equal hash.
func (p *Processor) processRollback(account consensus.Account, hash consensus.BlockHash) {
	var post rollbackPost
	err := p.store.Write(func(wt *store.WriteTxn) error {
		return p.rollbackTxn(wt, account, hash, &post)
	})
	if err != nil {
		p.halt(err)
		return
	}
	if post.code == consensus.ROLLBACK_SUCCESS {
		p.disp.emit(event{kind: eventRollback, block: post.block})
	}
}

// rollbackTxn checks the three preconditions (account exists, hash is
// the head, head is not confirmed) and, if they hold, undoes the head
// block: copies it to rollbacks, deletes it from blocks, clears the
// previous block's successor pointer, decrements the head pointer (or
// removes the account entirely if this was its genesis block), and
// reverses its representative-weight and opcode side effects.
func (p *Processor) rollbackTxn(wt *store.WriteTxn, account consensus.Account, hash consensus.BlockHash, post *rollbackPost) error {
	info, ok, err := wt.GetAccountInfo(account)
	if err != nil {
		return err
	}
	if !ok {
		post.code = consensus.ROLLBACK_ACCOUNT_MISS
		return nil
	}
	if info.HeadHash != hash {
		post.code = consensus.ROLLBACK_NON_HEAD
		return nil
	}
	if info.HasConfirmed() && info.ConfirmedHeight == info.HeadHeight {
		post.code = consensus.ROLLBACK_CONFIRMED
		return nil
	}

	blk, _, ok, err := wt.GetBlock(hash)
	if err != nil {
		return err
	}
	if !ok {
		return xerrHaltf("rollback: account %x head %x not in blocks", account, hash)
	}

	if err := wt.PutRollback(hash, blk); err != nil {
		return &consensus.LedgerError{Code: consensus.ROLLBACK_PUT_FAILED, Msg: err.Error()}
	}
	if blk.HasRepresentative() {
		wt.SubRepWeight(blk.Representative, blk.Balance)
	}
	if err := reverseOpcodeEffects(wt, blk); err != nil {
		return err
	}
	if store.ShouldIndex(blk.Height) {
		if err := wt.DeleteIndexEntry(account, blk.Height); err != nil {
			return err
		}
	}
	if err := wt.DeleteBlock(hash); err != nil {
		return err
	}

	if blk.Height == 0 {
		if err := wt.DeleteAccountInfo(account); err != nil {
			return err
		}
	} else {
		if err := wt.SetSuccessor(blk.Previous, consensus.BlockHash{}); err != nil {
			return err
		}
		prevBlk, _, ok, err := wt.GetBlock(blk.Previous)
		if err != nil {
			return err
		}
		if !ok {
			return xerrHaltf("rollback: account %x missing previous block %x", account, blk.Previous)
		}
		if prevBlk.HasRepresentative() {
			wt.AddRepWeight(prevBlk.Representative, prevBlk.Balance)
		}
		info.HeadHeight = blk.Height - 1
		info.HeadHash = blk.Previous
		if err := wt.PutAccountInfo(account, info); err != nil {
			return err
		}
	}

	post.code = consensus.ROLLBACK_SUCCESS
	post.block = blk
	return nil
}

// reverseOpcodeEffects undoes applyOpcodeEffects for a block being
// rolled back: a rolled-back send un-creates its receivable; a
// rolled-back receive recreates the receivable it had consumed, whose
// fields are recovered from the source send block.
func reverseOpcodeEffects(wt *store.WriteTxn, b *consensus.Block) error {
	switch b.Opcode {
	case consensus.OpSend:
		return wt.DeleteReceivable(b.LinkAsAccount(), b.Hash())
	case consensus.OpReceive:
		sendHash := b.LinkAsHash()
		sendBlk, _, ok, err := wt.GetBlock(sendHash)
		if err != nil {
			return err
		}
		if !ok {
			return xerrHaltf("rollback: receive %x missing source send block %x", b.Hash(), sendHash)
		}
		var prevBalance consensus.Amount
		if !sendBlk.Previous.IsZero() {
			prevBlk, _, ok, err := wt.GetBlock(sendBlk.Previous)
			if err != nil {
				return err
			}
			if ok {
				prevBalance = prevBlk.Balance
			}
		}
		amount, _ := prevBalance.Sub(sendBlk.Balance)
		return wt.PutReceivable(b.Account, sendHash, &store.Receivable{
			Source:    sendBlk.Account,
			Amount:    amount,
			Timestamp: sendBlk.Timestamp,
		})
	default:
		return nil
	}
}
