package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"raicore.dev/ledger/consensus"
)

var errConnClosed = errors.New("fake conn closed")

type fakeConn struct {
	inbound [][]byte
	writes  [][]byte
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	if len(c.inbound) == 0 {
		return nil, errConnClosed
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return msg, nil
}

func (c *fakeConn) Close() error { return nil }

type appendCall struct {
	block     *consensus.Block
	confirmed bool
}

type rollbackCall struct {
	account consensus.Account
	hash    consensus.BlockHash
}

type recordingProcessor struct {
	appends   []appendCall
	rollbacks []rollbackCall
}

func (p *recordingProcessor) EnqueueAppend(b *consensus.Block, confirmed bool) {
	p.appends = append(p.appends, appendCall{block: b, confirmed: confirmed})
}

func (p *recordingProcessor) EnqueueRollback(account consensus.Account, hash consensus.BlockHash) {
	p.rollbacks = append(p.rollbacks, rollbackCall{account: account, hash: hash})
}

type removeCall struct {
	account consensus.Account
	height  consensus.Height
}

type recordingScheduler struct {
	removes []removeCall
}

func (s *recordingScheduler) Remove(account consensus.Account, height consensus.Height) {
	s.removes = append(s.removes, removeCall{account: account, height: height})
}

type recordingCache struct {
	put []*consensus.Block
}

func (c *recordingCache) Put(_ time.Time, b *consensus.Block) {
	c.put = append(c.put, b)
}

type stubSigner struct {
	rep consensus.Account
	sig consensus.Signature
	ok  bool
}

func (s stubSigner) SignVote(consensus.BlockHash, int64) (consensus.Account, consensus.Signature, bool) {
	return s.rep, s.sig, s.ok
}

func blockConfirmJSON(t *testing.T, status string, confirmed *bool, b *consensus.Block) []byte {
	t.Helper()
	blockJSON, err := consensus.EncodeBlockJSON(b)
	if err != nil {
		t.Fatalf("EncodeBlockJSON: %v", err)
	}
	env := inboundEnvelope{Ack: "block_confirm", Status: status, Confirmed: confirmed, Block: blockJSON}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal inbound envelope: %v", err)
	}
	return data
}

func TestClientRunDispatchesBlocksQueryAck(t *testing.T) {
	first := testGatewayBlock(1)
	second := testGatewayBlock(3)
	firstJSON, err := consensus.EncodeBlockJSON(first)
	if err != nil {
		t.Fatalf("EncodeBlockJSON: %v", err)
	}
	secondJSON, err := consensus.EncodeBlockJSON(second)
	if err != nil {
		t.Fatalf("EncodeBlockJSON: %v", err)
	}
	env := inboundEnvelope{Ack: "blocks_query", Status: "success"}
	env.Blocks = append(env.Blocks, firstJSON, secondJSON)
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	conn := &fakeConn{inbound: [][]byte{data}}
	proc := &recordingProcessor{}
	sched := &recordingScheduler{}
	cache := &recordingCache{}
	c := New(Config{Conn: conn, Processor: proc, Scheduler: sched, Cache: cache})
	c.Run()

	if len(proc.appends) != 1 || proc.appends[0].block.Hash() != first.Hash() || proc.appends[0].confirmed {
		t.Fatalf("expected the first block enqueued unconfirmed, got %+v", proc.appends)
	}
	if len(sched.removes) != 1 || sched.removes[0].account != first.Account || sched.removes[0].height != first.Height {
		t.Fatalf("expected scheduler.Remove for the first block, got %+v", sched.removes)
	}
	if len(cache.put) != 1 || cache.put[0].Hash() != second.Hash() {
		t.Fatalf("expected the remaining blocks cached, got %+v", cache.put)
	}
}

func TestClientRunBlocksQueryAckIgnoresFailureStatus(t *testing.T) {
	env := inboundEnvelope{Ack: "blocks_query", Status: "error"}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn := &fakeConn{inbound: [][]byte{data}}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc, Scheduler: &recordingScheduler{}, Cache: &recordingCache{}})
	c.Run()

	if len(proc.appends) != 0 {
		t.Fatalf("expected no enqueue on a non-success ack, got %+v", proc.appends)
	}
}

func TestClientRunBlockConfirmAckSuccess(t *testing.T) {
	b := testGatewayBlock(2)
	confirmed := true
	data := blockConfirmJSON(t, "success", &confirmed, b)
	conn := &fakeConn{inbound: [][]byte{data}}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc})
	c.Run()

	if len(proc.appends) != 1 || proc.appends[0].block.Hash() != b.Hash() || !proc.appends[0].confirmed {
		t.Fatalf("expected a confirmed enqueue, got %+v", proc.appends)
	}
}

func TestClientRunBlockConfirmAckFork(t *testing.T) {
	b := testGatewayBlock(2)
	data := blockConfirmJSON(t, "fork", nil, b)
	conn := &fakeConn{inbound: [][]byte{data}}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc})
	c.Run()

	if len(proc.appends) != 1 || proc.appends[0].block.Hash() != b.Hash() || proc.appends[0].confirmed {
		t.Fatalf("expected an unconfirmed enqueue on fork status, got %+v", proc.appends)
	}
}

func TestClientRunBlockConfirmAckRollback(t *testing.T) {
	b := testGatewayBlock(2)
	data := blockConfirmJSON(t, "rollback", nil, b)
	conn := &fakeConn{inbound: [][]byte{data}}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc})
	c.Run()

	if len(proc.rollbacks) != 1 || proc.rollbacks[0].hash != b.Hash() || proc.rollbacks[0].account != b.Account {
		t.Fatalf("expected a rollback enqueue, got %+v", proc.rollbacks)
	}
}

func TestClientRunNotifyDispatch(t *testing.T) {
	appendBlock := testGatewayBlock(1)
	confirmBlock := testGatewayBlock(2)
	rollbackBlock := testGatewayBlock(3)

	var messages [][]byte
	for _, pair := range []struct {
		notify string
		block  *consensus.Block
	}{
		{"block_append", appendBlock},
		{"block_confirm", confirmBlock},
		{"block_rollback", rollbackBlock},
	} {
		blockJSON, err := consensus.EncodeBlockJSON(pair.block)
		if err != nil {
			t.Fatalf("EncodeBlockJSON: %v", err)
		}
		data, err := json.Marshal(inboundEnvelope{Notify: pair.notify, Block: blockJSON})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		messages = append(messages, data)
	}

	conn := &fakeConn{inbound: messages}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc})
	c.Run()

	if len(proc.appends) != 2 {
		t.Fatalf("expected 2 append enqueues (append + confirm notify), got %+v", proc.appends)
	}
	if proc.appends[0].block.Hash() != appendBlock.Hash() || proc.appends[0].confirmed {
		t.Fatalf("expected block_append notify to enqueue unconfirmed, got %+v", proc.appends[0])
	}
	if proc.appends[1].block.Hash() != confirmBlock.Hash() || !proc.appends[1].confirmed {
		t.Fatalf("expected block_confirm notify to enqueue confirmed, got %+v", proc.appends[1])
	}
	if len(proc.rollbacks) != 1 || proc.rollbacks[0].hash != rollbackBlock.Hash() {
		t.Fatalf("expected block_rollback notify to enqueue a rollback, got %+v", proc.rollbacks)
	}
}

func TestClientRunDropsMalformedMessage(t *testing.T) {
	conn := &fakeConn{inbound: [][]byte{[]byte(`{not json`)}}
	proc := &recordingProcessor{}
	c := New(Config{Conn: conn, Processor: proc})
	c.Run()

	if len(proc.appends) != 0 || len(proc.rollbacks) != 0 {
		t.Fatalf("expected a malformed message to be silently dropped, got %+v / %+v", proc.appends, proc.rollbacks)
	}
}

func TestClientSubscribeSendsBothEvents(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Conn: conn})
	if err := c.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(conn.writes) != 2 {
		t.Fatalf("expected 2 subscribe messages, got %d", len(conn.writes))
	}
	var first, second outboundEnvelope
	if err := json.Unmarshal(conn.writes[0], &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal(conn.writes[1], &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Action != "event_subscribe" || first.Event != "block_append" {
		t.Fatalf("unexpected first subscribe message: %+v", first)
	}
	if second.Action != "event_subscribe" || second.Event != "block_rollback" {
		t.Fatalf("unexpected second subscribe message: %+v", second)
	}
}

func TestClientSendBlocksQueryWritesMessage(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Conn: conn})
	var acc consensus.Account
	acc[0] = 4
	c.SendBlocksQuery("req-1", acc, 9, 5)
	if len(conn.writes) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(conn.writes))
	}
}

func TestClientBroadcastVoteNoopWithoutSigner(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Conn: conn})
	c.BroadcastVote(consensus.Account{}, 1, consensus.BlockHash{})
	if len(conn.writes) != 0 {
		t.Fatalf("expected no write without a configured signer, got %d", len(conn.writes))
	}
}

func TestClientBroadcastVoteWritesWithSigner(t *testing.T) {
	conn := &fakeConn{}
	var rep consensus.Account
	rep[0] = 9
	c := New(Config{Conn: conn, Signer: stubSigner{rep: rep, ok: true}})
	c.BroadcastVote(consensus.Account{}, 1, consensus.BlockHash{0x01})
	if len(conn.writes) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(conn.writes))
	}
}

func TestClientBroadcastVoteNoopWhenSignerDeclines(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{Conn: conn, Signer: stubSigner{ok: false}})
	c.BroadcastVote(consensus.Account{}, 1, consensus.BlockHash{0x01})
	if len(conn.writes) != 0 {
		t.Fatalf("expected no write when the signer declines, got %d", len(conn.writes))
	}
}

func TestClientBroadcastConfirmRequestNoopWithoutCandidates(t *testing.T) {
	conn := &fakeConn{}
	var rep consensus.Account
	rep[0] = 9
	c := New(Config{Conn: conn, Signer: stubSigner{rep: rep, ok: true}})
	c.BroadcastConfirmRequest(consensus.Account{}, 1, nil)
	if len(conn.writes) != 0 {
		t.Fatalf("expected no write without candidates, got %d", len(conn.writes))
	}
}

func TestClientBroadcastConfirmRequestIncludesBlock(t *testing.T) {
	conn := &fakeConn{}
	var rep consensus.Account
	rep[0] = 9
	c := New(Config{Conn: conn, Signer: stubSigner{rep: rep, ok: true}})
	b := testGatewayBlock(7)
	c.BroadcastConfirmRequest(consensus.Account{}, 1, []*consensus.Block{b})

	if len(conn.writes) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(conn.writes))
	}
	var env outboundEnvelope
	if err := json.Unmarshal(conn.writes[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Block) == 0 {
		t.Fatalf("expected the confirm-request vote to carry the candidate block")
	}
	decoded, err := consensus.DecodeBlockJSON(env.Block)
	if err != nil {
		t.Fatalf("DecodeBlockJSON: %v", err)
	}
	if decoded.Hash() != b.Hash() {
		t.Fatalf("carried block hash mismatch")
	}
}
