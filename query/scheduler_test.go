package query

import (
	"testing"
	"time"

	"raicore.dev/ledger/consensus"
)

type queryCall struct {
	requestID string
	account   consensus.Account
	height    consensus.Height
	count     uint32
}

type recordingGateway struct {
	calls []queryCall
}

func (g *recordingGateway) SendBlocksQuery(requestID string, account consensus.Account, height consensus.Height, count uint32) {
	g.calls = append(g.calls, queryCall{requestID: requestID, account: account, height: height, count: count})
}

func TestSchedulerAddMergesPendingLowersHeightRaisesCount(t *testing.T) {
	s := NewScheduler(nil, 8)
	var acc consensus.Account
	acc[0] = 1
	s.Add(acc, 10, 1)
	s.Add(acc, 5, 3)

	e, ok := s.pending[acc]
	if !ok {
		t.Fatalf("expected a merged pending entry")
	}
	if e.height != 5 {
		t.Fatalf("height = %d, want 5 (the lower of the two requests)", e.height)
	}
	if e.count != 3 {
		t.Fatalf("count = %d, want 3 (the higher of the two requests)", e.count)
	}
}

func TestSchedulerAddDoesNotRaiseHeightOrLowerCount(t *testing.T) {
	s := NewScheduler(nil, 8)
	var acc consensus.Account
	acc[0] = 1
	s.Add(acc, 5, 10)
	s.Add(acc, 8, 2)

	e := s.pending[acc]
	if e.height != 5 {
		t.Fatalf("height = %d, want the original lower value 5", e.height)
	}
	if e.count != 10 {
		t.Fatalf("count = %d, want the original higher value 10", e.count)
	}
}

func TestSchedulerRequestSyncAddsPendingWithMinimumCount(t *testing.T) {
	s := NewScheduler(nil, 8)
	var acc consensus.Account
	acc[0] = 1
	s.RequestSync(acc, 7, 0)

	e, ok := s.pending[acc]
	if !ok || e.height != 7 || e.count != 1 {
		t.Fatalf("unexpected pending entry: %+v ok=%v", e, ok)
	}
}

func TestSchedulerRemoveCancelsMatchingInflight(t *testing.T) {
	s := NewScheduler(nil, 8)
	var acc consensus.Account
	acc[0] = 1
	s.inflight[acc] = &inflightEntry{height: 5}

	s.Remove(acc, 6)
	if _, ok := s.inflight[acc]; !ok {
		t.Fatalf("Remove with a mismatched height must not cancel the in-flight query")
	}
	s.Remove(acc, 5)
	if _, ok := s.inflight[acc]; ok {
		t.Fatalf("expected Remove with the matching height to cancel the in-flight query")
	}
}

func TestSchedulerTickPromotesPendingUpToConcurrency(t *testing.T) {
	gw := &recordingGateway{}
	s := NewScheduler(gw, 2)
	now := time.Now()
	for i := byte(1); i <= 3; i++ {
		var acc consensus.Account
		acc[0] = i
		s.Add(acc, consensus.Height(i), 1)
	}

	s.tick(now)

	if len(s.inflight) != 2 {
		t.Fatalf("expected in-flight set capped at concurrency 2, got %d", len(s.inflight))
	}
	if len(s.pending) != 1 {
		t.Fatalf("expected 1 request left pending, got %d", len(s.pending))
	}
	if len(gw.calls) != 2 {
		t.Fatalf("expected 2 outbound query sends, got %d", len(gw.calls))
	}
}

func TestSchedulerTickRetriesDueInflightWithBackoff(t *testing.T) {
	gw := &recordingGateway{}
	s := NewScheduler(gw, 8)
	now := time.Now()
	var acc consensus.Account
	acc[0] = 1
	s.inflight[acc] = &inflightEntry{height: 5, count: 1, wakeup: now}

	s.tick(now)

	e := s.inflight[acc]
	if e.retries != 1 {
		t.Fatalf("retries = %d, want 1", e.retries)
	}
	if !e.wakeup.After(now) {
		t.Fatalf("expected wakeup to move forward after a retry")
	}
	if len(gw.calls) != 1 || gw.calls[0].height != 5 {
		t.Fatalf("expected one retry send, got %v", gw.calls)
	}
}

func TestSchedulerTickLeavesNotYetDueInflightAlone(t *testing.T) {
	gw := &recordingGateway{}
	s := NewScheduler(gw, 8)
	now := time.Now()
	var acc consensus.Account
	acc[0] = 1
	s.inflight[acc] = &inflightEntry{height: 5, count: 1, wakeup: now.Add(time.Minute)}

	s.tick(now)

	if len(gw.calls) != 0 {
		t.Fatalf("expected no retry send before wakeup, got %v", gw.calls)
	}
}

func TestBackoffGrowsThenCaps(t *testing.T) {
	if d := backoff(0); d != 5*time.Second {
		t.Fatalf("backoff(0) = %v, want 5s", d)
	}
	if d := backoff(10); d != 15*time.Second {
		t.Fatalf("backoff(10) = %v, want 15s", d)
	}
	if d := backoff(100); d != 60*time.Second {
		t.Fatalf("backoff(100) = %v, want the 60s cap", d)
	}
}
