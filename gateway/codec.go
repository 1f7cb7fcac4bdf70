// Package gateway implements the gateway message codec of section 6.3:
// the JSON action/ack/notify envelope exchanged with the single
// upstream full-node connection. The transport itself (TLS/WebSocket
// plumbing) is an explicit non-goal; Conn is a narrow interface the
// node wires to whatever websocket client it chooses.
package gateway

import (
	"encoding/json"
	"strconv"

	"raicore.dev/ledger/consensus"
)

// outboundEnvelope is the section-6.3 outbound shape; fields unused by
// a given action are omitted.
type outboundEnvelope struct {
	Action         string          `json:"action"`
	Account        string          `json:"account,omitempty"`
	Height         string          `json:"height,omitempty"`
	Count          string          `json:"count,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	Representative string          `json:"representative,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Signature      string          `json:"signature,omitempty"`
	Block          json.RawMessage `json:"block,omitempty"`
	Event          string          `json:"event,omitempty"`
}

// inboundEnvelope is the section-6.3 inbound shape: exactly one of Ack
// or Notify is set.
type inboundEnvelope struct {
	Ack       string            `json:"ack,omitempty"`
	Notify    string            `json:"notify,omitempty"`
	Status    string            `json:"status,omitempty"`
	Confirmed *bool             `json:"confirmed,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Block     json.RawMessage   `json:"block,omitempty"`
	Blocks    []json.RawMessage `json:"blocks,omitempty"`
}

func encodeBlocksQuery(requestID string, account consensus.Account, height consensus.Height, count uint32) ([]byte, error) {
	return json.Marshal(outboundEnvelope{
		Action:    "blocks_query",
		Account:   account.String(),
		Height:    strconv.FormatUint(height, 10),
		Count:     strconv.FormatUint(uint64(count), 10),
		RequestID: requestID,
	})
}

func encodeBlockConfirm(rep consensus.Account, timestamp int64, sig consensus.Signature, block *consensus.Block) ([]byte, error) {
	var blockJSON json.RawMessage
	if block != nil {
		var err error
		if blockJSON, err = consensus.EncodeBlockJSON(block); err != nil {
			return nil, err
		}
	}
	return json.Marshal(outboundEnvelope{
		Action:         "block_confirm",
		Representative: rep.String(),
		Timestamp:      strconv.FormatInt(timestamp, 10),
		Signature:      hexUpper(sig[:]),
		Block:          blockJSON,
	})
}

func encodeEventSubscribe(event string) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Action: "event_subscribe", Event: event})
}

func decodeInbound(data []byte) (*inboundEnvelope, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newInvalidJSON(err)
	}
	return &env, nil
}

func newInvalidJSON(err error) error {
	return &consensus.LedgerError{Code: consensus.GATEWAY_ERR_INVALID_JSON, Msg: err.Error()}
}

func hexUpper(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}
