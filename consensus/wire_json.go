package consensus

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// blockJSON is the wire shape of section 6.2: keys exactly as listed
// there, all numeric scalars as decimal strings, accounts as
// checksum-base32, hashes as uppercase hex.
type blockJSON struct {
	Type             string                `json:"type"`
	Opcode           string                `json:"opcode"`
	Credit           string                `json:"credit"`
	Counter          string                `json:"counter"`
	Timestamp        string                `json:"timestamp"`
	Height           string                `json:"height"`
	Account          string                `json:"account"`
	Previous         string                `json:"previous"`
	Representative   string                `json:"representative,omitempty"`
	Balance          string                `json:"balance"`
	Link             string                `json:"link"`
	ExtensionsLength string                `json:"extensions_length,omitempty"`
	Extensions       []extensionRecordJSON `json:"extensions,omitempty"`
	ExtensionsRaw    string                `json:"extensions_raw,omitempty"`
	Signature        string                `json:"signature"`
	Chain            string                `json:"chain,omitempty"`
	ChainID          string                `json:"chain_id,omitempty"`
}

type extensionRecordJSON struct {
	Type    uint16 `json:"type"`
	Payload string `json:"payload"`
}

func blockTypeFromString(s string) (BlockType, error) {
	switch s {
	case "transaction":
		return BlockTypeTransaction, nil
	case "representative":
		return BlockTypeRepresentative, nil
	case "airdrop":
		return BlockTypeAirdrop, nil
	default:
		return 0, xerrf(ERR_BAD_ENUM, "block: unknown json type %q", s)
	}
}

func opcodeFromString(s string) (Opcode, error) {
	switch s {
	case "send":
		return OpSend, nil
	case "receive":
		return OpReceive, nil
	case "change":
		return OpChange, nil
	case "credit":
		return OpCredit, nil
	case "reward":
		return OpReward, nil
	case "destroy":
		return OpDestroy, nil
	case "bind":
		return OpBind, nil
	default:
		return 0, xerrf(ERR_BAD_ENUM, "block: unknown json opcode %q", s)
	}
}

func hexUpper32(h [32]byte) string { return hexUpper(h[:]) }
func hexUpper(b []byte) string {
	s := hex.EncodeToString(b)
	out := make([]byte, len(s))
	for i := range s {
		c := s[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func parseHex32Field(name, s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, xerrf(ERR_BAD_ENUM, "block: %s: bad hex: %v", name, err)
	}
	if len(raw) != 32 {
		return out, xerrf(ERR_BAD_ENUM, "block: %s: expected 32 bytes, got %d", name, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// EncodeBlockJSON renders b as the section-6.2 JSON object. The
// extensions blob is emitted only as extensions_raw; EncodeBlockJSON
// never emits the structured "extensions" array (that form is accepted
// on input only, for interop with producers that prefer not to hand-
// assemble length prefixes).
func EncodeBlockJSON(b *Block) ([]byte, error) {
	j := blockJSON{
		Type:      b.Type.String(),
		Opcode:    b.Opcode.String(),
		Credit:    strconv.FormatUint(uint64(b.Credit), 10),
		Counter:   strconv.FormatUint(uint64(b.Counter), 10),
		Timestamp: strconv.FormatInt(b.Timestamp, 10),
		Height:    strconv.FormatUint(b.Height, 10),
		Account:   b.Account.String(),
		Previous:  hexUpper32(b.Previous),
		Balance:   b.Balance.String(),
		Signature: hexUpper(b.Signature[:]),
	}
	if b.Type == BlockTypeTransaction || b.Type == BlockTypeAirdrop {
		j.Representative = b.Representative.String()
	}
	switch b.Opcode {
	case OpSend:
		j.Link = b.LinkAsAccount().String()
	default:
		j.Link = hexUpper32(b.LinkAsHash())
	}
	if b.Type == BlockTypeTransaction {
		j.ExtensionsLength = strconv.Itoa(len(b.RawExtensions))
		j.ExtensionsRaw = hex.EncodeToString(b.RawExtensions)
	}
	if b.HasChain() {
		j.Chain = strconv.FormatUint(uint64(b.Chain), 10)
	}
	return json.Marshal(j)
}

// DecodeBlockJSON parses the section-6.2 JSON form back into a Block.
// It accepts extensions supplied as extensions_raw, as the structured
// extensions array, or both (when both are present they must encode to
// the same bytes); either way the result normalizes to RawExtensions.
func DecodeBlockJSON(data []byte) (*Block, error) {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, xerrf(GATEWAY_ERR_INVALID_JSON, "block: %v", err)
	}
	b := &Block{}
	var err error
	if b.Type, err = blockTypeFromString(j.Type); err != nil {
		return nil, err
	}
	if b.Opcode, err = opcodeFromString(j.Opcode); err != nil {
		return nil, err
	}
	credit, err := strconv.ParseUint(j.Credit, 10, 16)
	if err != nil {
		return nil, xerrf(ERR_CREDIT_OUT_OF_RANGE, "block: bad credit %q", j.Credit)
	}
	b.Credit = uint16(credit)
	counter, err := strconv.ParseUint(j.Counter, 10, 32)
	if err != nil {
		return nil, xerrf(ERR_COUNTER_OUT_OF_RANGE, "block: bad counter %q", j.Counter)
	}
	b.Counter = uint32(counter)
	ts, err := strconv.ParseInt(j.Timestamp, 10, 64)
	if err != nil {
		return nil, xerrf(ERR_TIMESTAMP_INVALID, "block: bad timestamp %q", j.Timestamp)
	}
	b.Timestamp = ts
	height, err := strconv.ParseUint(j.Height, 10, 64)
	if err != nil {
		return nil, xerrf(ERR_HEIGHT_OUT_OF_RANGE, "block: bad height %q", j.Height)
	}
	b.Height = height
	if b.Account, err = ParseAccount(j.Account); err != nil {
		return nil, err
	}
	if b.Previous, err = parseHash(j.Previous); err != nil {
		return nil, err
	}
	if j.Representative != "" {
		if b.Representative, err = ParseAccount(j.Representative); err != nil {
			return nil, err
		}
	}
	if b.Balance, err = ParseAmountDecimalString(j.Balance); err != nil {
		return nil, err
	}
	if b.Opcode == OpSend {
		linkAcc, err := ParseAccount(j.Link)
		if err != nil {
			return nil, err
		}
		b.Link = linkAcc
	} else {
		linkHash, err := parseHex32Field("link", j.Link)
		if err != nil {
			return nil, err
		}
		b.Link = linkHash
	}
	if err := decodeExtensionsJSON(b, j); err != nil {
		return nil, err
	}
	if j.Chain != "" {
		chain, err := strconv.ParseUint(j.Chain, 10, 32)
		if err != nil {
			return nil, xerrf(ERR_BAD_ENUM, "block: bad chain %q", j.Chain)
		}
		b.Chain = uint32(chain)
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil || len(sig) != 64 {
		return nil, xerrf(ERR_BAD_SIGNATURE, "block: bad signature encoding")
	}
	copy(b.Signature[:], sig)
	return b, nil
}

func decodeExtensionsJSON(b *Block, j blockJSON) error {
	if b.Type != BlockTypeTransaction {
		return nil
	}
	var fromRaw, fromRecords []byte
	haveRaw := j.ExtensionsRaw != ""
	haveRecords := len(j.Extensions) > 0
	if haveRaw {
		raw, err := hex.DecodeString(j.ExtensionsRaw)
		if err != nil {
			return xerrf(ERR_BAD_ENUM, "block: bad extensions_raw hex: %v", err)
		}
		fromRaw = raw
	}
	if haveRecords {
		records := make([]ExtensionRecord, 0, len(j.Extensions))
		for _, r := range j.Extensions {
			payload, err := hex.DecodeString(r.Payload)
			if err != nil {
				return xerrf(ERR_BAD_ENUM, "block: bad extension record payload hex: %v", err)
			}
			records = append(records, ExtensionRecord{Type: r.Type, Payload: payload})
		}
		fromRecords = EncodeRecords(records)
	}
	switch {
	case haveRaw && haveRecords:
		if len(fromRaw) != len(fromRecords) || !bytesEqual(fromRaw, fromRecords) {
			return xerrf(ERR_BAD_ENUM, "block: extensions_raw and extensions disagree")
		}
		b.RawExtensions = fromRaw
	case haveRaw:
		b.RawExtensions = fromRaw
	case haveRecords:
		b.RawExtensions = fromRecords
	default:
		b.RawExtensions = nil
	}
	if len(b.RawExtensions) > MaxExtensionsLen {
		return xerrf(ERR_EXTENSIONS_TOO_LONG, "block: extensions length %d exceeds max %d", len(b.RawExtensions), MaxExtensionsLen)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parseHash(s string) (BlockHash, error) {
	h, err := parseHex32Field("hash", s)
	return BlockHash(h), err
}
