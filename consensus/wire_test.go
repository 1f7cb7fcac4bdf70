package consensus

import (
	"crypto/ed25519"
	"testing"
	"time"
)

func mustKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func TestWireRoundTripTransaction(t *testing.T) {
	pub, priv := mustKey(t)
	var acc Account
	copy(acc[:], pub)
	b := &Block{
		Type:           BlockTypeTransaction,
		Opcode:         OpSend,
		Credit:         2,
		Counter:        5,
		Timestamp:      time.Now().Unix(),
		Height:         3,
		Account:        acc,
		Previous:       BlockHash{1, 2, 3},
		Representative: Account{9, 9},
		Balance:        AmountFromUint64(500),
		Link:           Account{7, 7, 7},
		RawExtensions:  []byte{0xde, 0xad, 0xbe, 0xef},
	}
	Sign(b, priv)

	enc := EncodeBlock(b)
	got, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Hash() != b.Hash() {
		t.Fatalf("decoded hash mismatch: got %x, want %x", got.Hash(), b.Hash())
	}
	if got.Signature != b.Signature {
		t.Fatalf("decoded signature mismatch")
	}
	if string(got.RawExtensions) != string(b.RawExtensions) {
		t.Fatalf("decoded extensions mismatch: got %x, want %x", got.RawExtensions, b.RawExtensions)
	}
}

func TestWireRoundTripRepresentativeBind(t *testing.T) {
	pub, priv := mustKey(t)
	var acc Account
	copy(acc[:], pub)
	b := &Block{
		Type:      BlockTypeRepresentative,
		Opcode:    OpBind,
		Credit:    1,
		Counter:   1,
		Timestamp: time.Now().Unix(),
		Height:    0,
		Account:   acc,
		Balance:   AmountFromUint64(10),
		Link:      BlockHash{4, 5, 6},
		Chain:     42,
	}
	Sign(b, priv)

	enc := EncodeBlock(b)
	got, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Chain != b.Chain {
		t.Fatalf("chain mismatch: got %d, want %d", got.Chain, b.Chain)
	}
	if got.Hash() != b.Hash() {
		t.Fatalf("hash mismatch after round trip")
	}
}

func TestWireRoundTripRepresentativeNonBindOmitsChain(t *testing.T) {
	pub, priv := mustKey(t)
	var acc Account
	copy(acc[:], pub)
	b := &Block{
		Type:      BlockTypeRepresentative,
		Opcode:    OpChange,
		Credit:    1,
		Counter:   1,
		Timestamp: time.Now().Unix(),
		Account:   acc,
		Balance:   AmountFromUint64(10),
		Link:      BlockHash{1},
	}
	Sign(b, priv)
	enc := EncodeBlock(b)
	got, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Chain != 0 {
		t.Fatalf("non-bind representative block must decode with zero chain, got %d", got.Chain)
	}
}

func TestWireRoundTripAirdrop(t *testing.T) {
	pub, priv := mustKey(t)
	var acc Account
	copy(acc[:], pub)
	b := &Block{
		Type:           BlockTypeAirdrop,
		Opcode:         OpReward,
		Credit:         1,
		Counter:        1,
		Timestamp:      time.Now().Unix(),
		Account:        acc,
		Representative: Account{1, 2},
		Balance:        AmountFromUint64(77),
		Link:           BlockHash{8},
	}
	Sign(b, priv)
	enc := EncodeBlock(b)
	got, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Hash() != b.Hash() {
		t.Fatalf("hash mismatch after round trip")
	}
}

func TestDecodeBlockTruncated(t *testing.T) {
	_, err := DecodeBlock([]byte{byte(BlockTypeTransaction)})
	if CodeOf(err) != ERR_STREAM_TRUNCATED {
		t.Fatalf("code=%v, want ERR_STREAM_TRUNCATED", CodeOf(err))
	}
}

func TestDecodeBlockUnknownType(t *testing.T) {
	_, err := DecodeBlock([]byte{0xff, 0x00})
	if CodeOf(err) != ERR_BAD_ENUM {
		t.Fatalf("code=%v, want ERR_BAD_ENUM", CodeOf(err))
	}
}

func TestDecodeBlockExtensionsTooLong(t *testing.T) {
	pub, priv := mustKey(t)
	var acc Account
	copy(acc[:], pub)
	b := &Block{
		Type:      BlockTypeTransaction,
		Opcode:    OpSend,
		Credit:    1,
		Counter:   1,
		Timestamp: time.Now().Unix(),
		Account:   acc,
		Balance:   AmountFromUint64(1),
		Link:      Account{1},
	}
	Sign(b, priv)
	enc := EncodeBlock(b)
	// Corrupt the ext_len field (right after the fixed 168-byte head) to
	// claim a length beyond MaxExtensionsLen.
	extLenOff := 1 + 1 + 2 + 4 + 8 + 8 + 32 + 32 + 32 + 16 + 32
	enc[extLenOff] = 0xff
	enc[extLenOff+1] = 0xff
	_, err := DecodeBlock(enc)
	if CodeOf(err) != ERR_EXTENSIONS_TOO_LONG {
		t.Fatalf("code=%v, want ERR_EXTENSIONS_TOO_LONG", CodeOf(err))
	}
}
