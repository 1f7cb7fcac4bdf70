package gateway

import (
	"encoding/json"
	"testing"

	"raicore.dev/ledger/consensus"
)

func testGatewayBlock(seed byte) *consensus.Block {
	var acc, rep consensus.Account
	acc[0] = seed
	rep[0] = seed + 1
	return &consensus.Block{
		Type:           consensus.BlockTypeTransaction,
		Opcode:         consensus.OpCredit,
		Credit:         1,
		Counter:        1,
		Height:         3,
		Account:        acc,
		Representative: rep,
		Balance:        consensus.AmountFromUint64(100),
	}
}

func TestEncodeBlocksQueryShape(t *testing.T) {
	var acc consensus.Account
	acc[0] = 5
	data, err := encodeBlocksQuery("req-1", acc, 7, 20)
	if err != nil {
		t.Fatalf("encodeBlocksQuery: %v", err)
	}
	var env outboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Action != "blocks_query" || env.Height != "7" || env.Count != "20" || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Account != acc.String() {
		t.Fatalf("account = %q, want %q", env.Account, acc.String())
	}
}

func TestEncodeBlockConfirmWithBlock(t *testing.T) {
	var rep consensus.Account
	rep[0] = 9
	b := testGatewayBlock(1)
	data, err := encodeBlockConfirm(rep, 1234, consensus.Signature{0x01}, b)
	if err != nil {
		t.Fatalf("encodeBlockConfirm: %v", err)
	}
	var env outboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Action != "block_confirm" || env.Timestamp != "1234" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(env.Block) == 0 {
		t.Fatalf("expected the block field to be populated")
	}
	decoded, err := consensus.DecodeBlockJSON(env.Block)
	if err != nil {
		t.Fatalf("DecodeBlockJSON: %v", err)
	}
	if decoded.Hash() != b.Hash() {
		t.Fatalf("round-tripped block hash mismatch")
	}
}

func TestEncodeBlockConfirmWithoutBlockOmitsField(t *testing.T) {
	var rep consensus.Account
	rep[0] = 9
	data, err := encodeBlockConfirm(rep, 1234, consensus.Signature{}, nil)
	if err != nil {
		t.Fatalf("encodeBlockConfirm with a nil block must not error: %v", err)
	}
	var env outboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Block) != 0 {
		t.Fatalf("expected an empty block field, got %s", env.Block)
	}
}

func TestEncodeEventSubscribeShape(t *testing.T) {
	data, err := encodeEventSubscribe("block_append")
	if err != nil {
		t.Fatalf("encodeEventSubscribe: %v", err)
	}
	var env outboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Action != "event_subscribe" || env.Event != "block_append" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDecodeInboundAck(t *testing.T) {
	env, err := decodeInbound([]byte(`{"ack":"blocks_query","status":"success","request_id":"req-1"}`))
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if env.Ack != "blocks_query" || env.Status != "success" || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDecodeInboundInvalidJSON(t *testing.T) {
	_, err := decodeInbound([]byte(`{not json`))
	if err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
	ledgerErr, ok := err.(*consensus.LedgerError)
	if !ok {
		t.Fatalf("expected a *consensus.LedgerError, got %T", err)
	}
	if ledgerErr.Code != consensus.GATEWAY_ERR_INVALID_JSON {
		t.Fatalf("error code = %q, want %q", ledgerErr.Code, consensus.GATEWAY_ERR_INVALID_JSON)
	}
}

func TestHexUpper(t *testing.T) {
	got := hexUpper([]byte{0x01, 0xab, 0xff})
	if got != "01ABFF" {
		t.Fatalf("hexUpper = %q, want 01ABFF", got)
	}
}
