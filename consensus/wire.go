package consensus

import "encoding/binary"

// SigningBytes serializes b into the little-endian binary layout of
// section 6.1, EXCLUDING the trailing signature; this is the payload
// BlockHash is computed over. Field order and widths follow the
// per-variant layouts given there.
func SigningBytes(b *Block) []byte {
	switch b.Type {
	case BlockTypeTransaction:
		return transactionSigningBytes(b)
	case BlockTypeRepresentative:
		return representativeSigningBytes(b)
	case BlockTypeAirdrop:
		return airdropSigningBytes(b)
	default:
		return nil
	}
}

// EncodeBlock serializes b to its full binary wire form, including the
// trailing signature.
func EncodeBlock(b *Block) []byte {
	out := SigningBytes(b)
	out = append(out, b.Signature[:]...)
	return out
}

func appendU16(dst []byte, v uint16) []byte {
	var t [2]byte
	binary.LittleEndian.PutUint16(t[:], v)
	return append(dst, t[:]...)
}

func appendU32(dst []byte, v uint32) []byte {
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], v)
	return append(dst, t[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], v)
	return append(dst, t[:]...)
}

// transactionSigningBytes lays out:
// type(1) | opcode(1) | credit(2) | counter(4) | timestamp(8) |
// height(8) | account(32) | previous(32) | representative(32) |
// balance(16 BE) | link(32) | ext_len(4) | ext_bytes
func transactionSigningBytes(b *Block) []byte {
	balance := b.Balance.Bytes()
	out := make([]byte, 0, 1+1+2+4+8+8+32+32+32+16+32+4+len(b.RawExtensions))
	out = append(out, byte(b.Type), byte(b.Opcode))
	out = appendU16(out, b.Credit)
	out = appendU32(out, b.Counter)
	out = appendU64(out, uint64(b.Timestamp))
	out = appendU64(out, b.Height)
	out = append(out, b.Account[:]...)
	out = append(out, b.Previous[:]...)
	out = append(out, b.Representative[:]...)
	out = append(out, balance[:]...)
	out = append(out, b.Link[:]...)
	out = appendU32(out, uint32(len(b.RawExtensions)))
	out = append(out, b.RawExtensions...)
	return out
}

// representativeSigningBytes lays out the transaction layout minus
// representative and ext_*, plus chain(4) only when opcode == bind.
func representativeSigningBytes(b *Block) []byte {
	balance := b.Balance.Bytes()
	size := 1 + 1 + 2 + 4 + 8 + 8 + 32 + 32 + 16 + 32
	if b.Opcode == OpBind {
		size += 4
	}
	out := make([]byte, 0, size)
	out = append(out, byte(b.Type), byte(b.Opcode))
	out = appendU16(out, b.Credit)
	out = appendU32(out, b.Counter)
	out = appendU64(out, uint64(b.Timestamp))
	out = appendU64(out, b.Height)
	out = append(out, b.Account[:]...)
	out = append(out, b.Previous[:]...)
	out = append(out, balance[:]...)
	out = append(out, b.Link[:]...)
	if b.Opcode == OpBind {
		out = appendU32(out, b.Chain)
	}
	return out
}

// airdropSigningBytes lays out the transaction layout minus ext_*.
func airdropSigningBytes(b *Block) []byte {
	balance := b.Balance.Bytes()
	out := make([]byte, 0, 1+1+2+4+8+8+32+32+32+16+32)
	out = append(out, byte(b.Type), byte(b.Opcode))
	out = appendU16(out, b.Credit)
	out = appendU32(out, b.Counter)
	out = appendU64(out, uint64(b.Timestamp))
	out = appendU64(out, b.Height)
	out = append(out, b.Account[:]...)
	out = append(out, b.Previous[:]...)
	out = append(out, b.Representative[:]...)
	out = append(out, balance[:]...)
	out = append(out, b.Link[:]...)
	return out
}
