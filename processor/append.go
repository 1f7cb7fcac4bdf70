package processor

import (
	"fmt"
	"time"

	"raicore.dev/ledger/consensus"
	"raicore.dev/ledger/store"
)

// postActions accumulates the observer events and follow-up enqueues
// that a single append decides on, so they can be fired only after the
// ledger write transaction has committed (section 9: "never
// synchronously inside a ledger write transaction").
type postActions struct {
	code consensus.ErrorCode

	emitConfirm    bool
	prevConfirmedH consensus.Height

	syncFrom consensus.Height

	electionAccount    consensus.Account
	electionHeight     consensus.Height
	electionCandidates []*consensus.Block

	emitForkAdd    bool
	emitForkDelete bool
	forkFirst      *consensus.Block
	forkSecond     *consensus.Block

	rollbackAccount consensus.Account
	rollbackLocal   *consensus.BlockHash
	requeueHigh     *consensus.Block

	drain        bool
	drainAccount consensus.Account
	drainHeight  consensus.Height
}

// processAppend runs the append state machine of section 4.1 for one
// (block, confirmed) input.
func (p *Processor) processAppend(b *consensus.Block, confirmed bool) {
	now := time.Now()
	if err := consensus.ValidateStructural(b, now); err != nil {
		p.drop(b, consensus.CodeOf(err))
		return
	}
	if err := consensus.VerifySignature(b); err != nil {
		p.drop(b, consensus.CodeOf(err))
		return
	}

	var post postActions
	err := p.store.Write(func(wt *store.WriteTxn) error {
		return p.appendTxn(wt, b, confirmed, &post)
	})
	if err != nil {
		p.halt(err)
		return
	}
	p.runPost(post, b, confirmed)
}

// appendTxn decides and applies outcome 1-8 of section 4.1 inside a
// single write transaction. Returning a non-nil error means outcome 9
// (HALT): the caller aborts and stops the processor.
func (p *Processor) appendTxn(wt *store.WriteTxn, b *consensus.Block, confirmed bool, post *postActions) error {
	info, ok, err := wt.GetAccountInfo(b.Account)
	if err != nil {
		return err
	}

	if !ok {
		if b.Height == 0 {
			return p.doGenesisAppend(wt, b, confirmed, post)
		}
		post.code = consensus.APP_PROCESS_GAP_PREVIOUS
		post.syncFrom = 0
		return nil
	}

	if b.Height > info.HeadHeight+1 {
		post.code = consensus.APP_PROCESS_GAP_PREVIOUS
		post.syncFrom = info.HeadHeight + 1
		return nil
	}

	if b.Height == info.HeadHeight+1 {
		head, _, ok, err := wt.GetBlock(info.HeadHash)
		if err != nil {
			return err
		}
		if !ok {
			return xerrHaltf("append: account %x missing head block %x", b.Account, info.HeadHash)
		}
		if b.Previous == info.HeadHash {
			return p.doExtend(wt, b, confirmed, head, info, post)
		}
		post.code = consensus.APP_PROCESS_PREVIOUS_MISMATCH
		post.electionAccount = b.Account
		post.electionHeight = info.HeadHeight
		post.electionCandidates = []*consensus.Block{head}
		return nil
	}

	if b.Height >= info.TailHeight && b.Height <= info.HeadHeight {
		existing, ok, err := wt.GetBlockAtHeight(b.Account, b.Height)
		if err != nil {
			return err
		}
		if !ok {
			return xerrHaltf("append: account %x missing block at height %d", b.Account, b.Height)
		}
		if existing.Hash() == b.Hash() {
			post.code = consensus.APP_PROCESS_EXIST
			return p.maybeRaiseConfirmed(wt, info, b, confirmed, post)
		}
		return p.doFork(wt, b, confirmed, existing, info, post)
	}

	post.code = consensus.APP_PROCESS_PRUNED
	return nil
}

// doGenesisAppend implements outcome 1: the first block of a
// never-before-seen account.
func (p *Processor) doGenesisAppend(wt *store.WriteTxn, b *consensus.Block, confirmed bool, post *postActions) error {
	if err := consensus.ValidateHeightLinkage(b, nil); err != nil {
		post.code = consensus.CodeOf(err)
		return nil
	}
	if err := validateOpcodeBalance(wt, b, consensus.ZeroAmount); err != nil {
		post.code = consensus.CodeOf(err)
		return nil
	}
	hash := b.Hash()
	info := &store.AccountInfo{
		Type:            b.Type,
		TailHeight:      0,
		HeadHeight:      0,
		ConfirmedHeight: consensus.InvalidHeight,
		HeadHash:        hash,
		TailHash:        hash,
	}
	if confirmed {
		info.ConfirmedHeight = 0
	}
	if err := wt.PutAccountInfo(b.Account, info); err != nil {
		return err
	}
	if err := wt.PutBlock(hash, b, consensus.BlockHash{}); err != nil {
		return err
	}
	if b.HasRepresentative() {
		wt.AddRepWeight(b.Representative, b.Balance)
	}
	if err := applyOpcodeEffects(wt, b, consensus.ZeroAmount); err != nil {
		return err
	}

	post.code = consensus.APP_PROCESS_SUCCESS
	if confirmed {
		post.emitConfirm = true
		post.prevConfirmedH = consensus.InvalidHeight
	}
	post.drain = true
	post.drainAccount = b.Account
	post.drainHeight = 1
	return nil
}

// doExtend implements outcome 4: a block directly extending the
// current head.
func (p *Processor) doExtend(wt *store.WriteTxn, b *consensus.Block, confirmed bool, head *consensus.Block, info *store.AccountInfo, post *postActions) error {
	if err := consensus.ValidateHeightLinkage(b, head); err != nil {
		post.code = consensus.CodeOf(err)
		return nil
	}
	if err := validateOpcodeBalance(wt, b, head.Balance); err != nil {
		post.code = consensus.CodeOf(err)
		return nil
	}
	hash := b.Hash()
	if err := wt.SetSuccessor(info.HeadHash, hash); err != nil {
		return err
	}
	if err := wt.PutBlock(hash, b, consensus.BlockHash{}); err != nil {
		return err
	}
	if head.HasRepresentative() {
		wt.SubRepWeight(head.Representative, head.Balance)
	}
	if b.HasRepresentative() {
		wt.AddRepWeight(b.Representative, b.Balance)
	}
	if err := applyOpcodeEffects(wt, b, head.Balance); err != nil {
		return err
	}

	info.HeadHeight = b.Height
	info.HeadHash = hash
	if store.ShouldIndex(b.Height) {
		if err := wt.PutIndexEntry(b.Account, b.Height, hash); err != nil {
			return err
		}
	}
	if confirmed {
		prev := info.ConfirmedHeight
		info.ConfirmedHeight = b.Height
		post.emitConfirm = true
		post.prevConfirmedH = prev
	}
	if err := wt.PutAccountInfo(b.Account, info); err != nil {
		return err
	}

	post.code = consensus.APP_PROCESS_SUCCESS
	post.drain = true
	post.drainAccount = b.Account
	post.drainHeight = b.Height + 1
	return nil
}

// maybeRaiseConfirmed implements the EXIST half of outcome 6: a
// retransmitted block that has now been confirmed raises
// confirmed_height if it had not already reached this height.
func (p *Processor) maybeRaiseConfirmed(wt *store.WriteTxn, info *store.AccountInfo, b *consensus.Block, confirmed bool, post *postActions) error {
	if !confirmed {
		return nil
	}
	if info.HasConfirmed() && b.Height <= info.ConfirmedHeight {
		return nil
	}
	prev := info.ConfirmedHeight
	info.ConfirmedHeight = b.Height
	if err := wt.PutAccountInfo(b.Account, info); err != nil {
		return err
	}
	post.emitConfirm = true
	post.prevConfirmedH = prev
	return nil
}

// doFork implements outcome 7: a second, different block at an
// already-occupied (account, height).
func (p *Processor) doFork(wt *store.WriteTxn, b *consensus.Block, confirmed bool, existing *consensus.Block, info *store.AccountInfo, post *postActions) error {
	if info.HasConfirmed() && b.Height < info.ConfirmedHeight {
		post.code = consensus.APP_PROCESS_CONFIRMED_FORK
		return nil
	}

	if confirmed {
		prior, hadFork, err := wt.GetFork(b.Account, b.Height)
		if err != nil {
			return err
		}
		if hadFork {
			if err := wt.DeleteFork(b.Account, b.Height); err != nil {
				return err
			}
			post.emitForkDelete = true
			post.forkFirst = prior.First
			post.forkSecond = prior.Second
		}
		// Roll back the account's current head, not the block actually
		// stored at b.Height: when the fork height is below the head,
		// the Rollback state machine only ever accepts the head hash
		// (processor/rollback.go), so the reference's cascading
		// head-rollback approach is followed here too (original_source
		// rai/app/app.cpp GetHeadBlock_/QueueBlockRollback(head)).
		localHash := info.HeadHash
		post.code = consensus.APP_PROCESS_FORK
		post.rollbackAccount = b.Account
		post.rollbackLocal = &localHash
		post.requeueHigh = b
		return nil
	}

	_, hadFork, err := wt.GetFork(b.Account, b.Height)
	if err != nil {
		return err
	}
	if err := wt.PutFork(b.Account, b.Height, &store.ForkEntry{First: existing, Second: b}); err != nil {
		return err
	}
	post.code = consensus.APP_PROCESS_FORK
	if !hadFork {
		post.emitForkAdd = true
		post.forkFirst = existing
		post.forkSecond = b
	}
	post.electionAccount = b.Account
	post.electionHeight = b.Height
	post.electionCandidates = []*consensus.Block{existing, b}
	return nil
}

// validateOpcodeBalance cross-checks b's claimed balance against the
// opcode-specific transition rule of section 3/4, ahead of mutating
// anything. For OpReceive this also confirms the claimed balance
// matches the actual pending receivable rather than an attacker's made-
// up amount, since PutReceivable/DeleteReceivable never re-derive the
// transferred amount from the ledger themselves.
func validateOpcodeBalance(wt *store.WriteTxn, b *consensus.Block, prevBalance consensus.Amount) error {
	var amount consensus.Amount
	switch b.Opcode {
	case consensus.OpSend:
		spent, underflow := prevBalance.Sub(b.Balance)
		if underflow {
			return xerrHaltf("append: send balance underflow for account %x", b.Account)
		}
		amount = spent
	case consensus.OpReceive:
		r, ok, err := wt.GetReceivable(b.Account, b.LinkAsHash())
		if err != nil {
			return err
		}
		if !ok {
			return consensus.NewLedgerError(consensus.ERR_BALANCE_INVALID, "receive: no matching receivable")
		}
		amount = r.Amount
	case consensus.OpReward, consensus.OpCredit:
		gained, overflow := b.Balance.Sub(prevBalance)
		if overflow {
			gained = consensus.ZeroAmount
		}
		amount = gained
	}
	return consensus.ValidateBalanceTransition(b, prevBalance, amount)
}

// applyOpcodeEffects applies the section-4.1 "after-append hook":
// opcode-specific side effects in the same transaction as the block
// append. prevBalance is the account balance before b (zero at
// genesis).
func applyOpcodeEffects(wt *store.WriteTxn, b *consensus.Block, prevBalance consensus.Amount) error {
	switch b.Opcode {
	case consensus.OpSend:
		amount, underflow := prevBalance.Sub(b.Balance)
		if underflow {
			return xerrHaltf("append: send balance underflow for account %x", b.Account)
		}
		dest := b.LinkAsAccount()
		return wt.PutReceivable(dest, b.Hash(), &store.Receivable{
			Source:    b.Account,
			Amount:    amount,
			Timestamp: b.Timestamp,
		})
	case consensus.OpReceive:
		return wt.DeleteReceivable(b.Account, b.LinkAsHash())
	default:
		return nil
	}
}

// runPost fires observer events and follow-up enqueues decided by
// appendTxn, after its transaction has committed.
func (p *Processor) runPost(post postActions, b *consensus.Block, confirmed bool) {
	switch post.code {
	case consensus.APP_PROCESS_SUCCESS:
		p.disp.emit(event{kind: eventAppend, block: b, confirmed: confirmed})
		if post.emitConfirm {
			p.disp.emit(event{kind: eventConfirm, block: b, prevConfirmedH: post.prevConfirmedH})
		}
	case consensus.APP_PROCESS_EXIST:
		if post.emitConfirm {
			p.disp.emit(event{kind: eventConfirm, block: b, prevConfirmedH: post.prevConfirmedH})
		}
	case consensus.APP_PROCESS_GAP_PREVIOUS:
		p.sync.RequestSync(b.Account, post.syncFrom, 0)
	case consensus.APP_PROCESS_PREVIOUS_MISMATCH:
		p.election.Add(post.electionAccount, post.electionHeight, post.electionCandidates...)
	case consensus.APP_PROCESS_FORK:
		if post.emitForkAdd {
			p.disp.emit(event{kind: eventForkAdd, block: post.forkFirst, second: post.forkSecond})
		}
		if post.emitForkDelete {
			p.disp.emit(event{kind: eventForkDelete, block: post.forkFirst, second: post.forkSecond})
		}
		if len(post.electionCandidates) > 0 {
			p.election.Add(post.electionAccount, post.electionHeight, post.electionCandidates...)
		}
		if post.rollbackLocal != nil {
			p.EnqueueRollback(post.rollbackAccount, *post.rollbackLocal)
		}
		if post.requeueHigh != nil {
			p.EnqueueAppendHigh(post.requeueHigh, true)
		}
	case consensus.APP_PROCESS_CONFIRMED_FORK, consensus.APP_PROCESS_PRUNED:
		p.disp.emit(event{kind: eventDrop, block: b, code: post.code})
	}

	if post.drain {
		for _, waiter := range p.waiting.DrainWaiting(post.drainAccount, post.drainHeight) {
			p.EnqueueAppend(waiter, confirmed)
		}
	}
}

func (p *Processor) drop(b *consensus.Block, code consensus.ErrorCode) {
	p.disp.emit(event{kind: eventDrop, block: b, code: code})
}

// xerrHaltf builds an error for a storage-layer inconsistency that
// should escalate straight to outcome 9 (HALT); these indicate a
// corrupted ledger rather than an ordinary I/O failure, but the
// processor treats them identically per section 7.
func xerrHaltf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
