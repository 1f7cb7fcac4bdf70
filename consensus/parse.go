package consensus

import "encoding/binary"

// DecodeBlock parses the little-endian binary wire form of section 6.1
// (including the trailing signature) back into a Block. The first byte
// (Type) selects which of the three variant layouts follows.
func DecodeBlock(data []byte) (*Block, error) {
	if len(data) < 2 {
		return nil, xerr(ERR_STREAM_TRUNCATED, "block: truncated before type/opcode")
	}
	typ := BlockType(data[0])
	switch typ {
	case BlockTypeTransaction:
		return decodeTransaction(data)
	case BlockTypeRepresentative:
		return decodeRepresentative(data)
	case BlockTypeAirdrop:
		return decodeAirdrop(data)
	default:
		return nil, xerrf(ERR_BAD_ENUM, "block: unknown type %d", typ)
	}
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return xerr(ERR_STREAM_TRUNCATED, "block: truncated field")
	}
	return nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) bytes32() ([32]byte, error) {
	var out [32]byte
	if err := c.need(32); err != nil {
		return out, err
	}
	copy(out[:], c.buf[c.pos:c.pos+32])
	c.pos += 32
	return out, nil
}

func (c *cursor) bytes16() ([16]byte, error) {
	var out [16]byte
	if err := c.need(16); err != nil {
		return out, err
	}
	copy(out[:], c.buf[c.pos:c.pos+16])
	c.pos += 16
	return out, nil
}

func (c *cursor) bytes64() ([64]byte, error) {
	var out [64]byte
	if err := c.need(64); err != nil {
		return out, err
	}
	copy(out[:], c.buf[c.pos:c.pos+64])
	c.pos += 64
	return out, nil
}

func (c *cursor) bytesN(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	out := append([]byte(nil), c.buf[c.pos:c.pos+n]...)
	c.pos += n
	return out, nil
}

func decodeTransaction(data []byte) (*Block, error) {
	c := &cursor{buf: data}
	b := &Block{Type: BlockTypeTransaction}
	if err := decodeTypeOpcodeCommonHead(c, b); err != nil {
		return nil, err
	}
	account, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Account = Account(account)
	previous, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Previous = BlockHash(previous)
	rep, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Representative = Account(rep)
	balance, err := c.bytes16()
	if err != nil {
		return nil, err
	}
	b.Balance = AmountFromBytes(balance)
	link, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Link = link
	extLen, err := c.u32()
	if err != nil {
		return nil, err
	}
	if extLen > MaxExtensionsLen {
		return nil, xerrf(ERR_EXTENSIONS_TOO_LONG, "block: extensions length %d exceeds max %d", extLen, MaxExtensionsLen)
	}
	ext, err := c.bytesN(int(extLen))
	if err != nil {
		return nil, err
	}
	b.RawExtensions = ext
	sig, err := c.bytes64()
	if err != nil {
		return nil, err
	}
	b.Signature = Signature(sig)
	if c.pos != len(c.buf) {
		return nil, xerr(ERR_STREAM_TRUNCATED, "block: trailing bytes after signature")
	}
	return b, nil
}

func decodeRepresentative(data []byte) (*Block, error) {
	c := &cursor{buf: data}
	b := &Block{Type: BlockTypeRepresentative}
	if err := decodeTypeOpcodeCommonHead(c, b); err != nil {
		return nil, err
	}
	account, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Account = Account(account)
	previous, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Previous = BlockHash(previous)
	balance, err := c.bytes16()
	if err != nil {
		return nil, err
	}
	b.Balance = AmountFromBytes(balance)
	link, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Link = link
	if b.Opcode == OpBind {
		chain, err := c.u32()
		if err != nil {
			return nil, err
		}
		b.Chain = chain
	}
	sig, err := c.bytes64()
	if err != nil {
		return nil, err
	}
	b.Signature = Signature(sig)
	if c.pos != len(c.buf) {
		return nil, xerr(ERR_STREAM_TRUNCATED, "block: trailing bytes after signature")
	}
	return b, nil
}

func decodeAirdrop(data []byte) (*Block, error) {
	c := &cursor{buf: data}
	b := &Block{Type: BlockTypeAirdrop}
	if err := decodeTypeOpcodeCommonHead(c, b); err != nil {
		return nil, err
	}
	account, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Account = Account(account)
	previous, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Previous = BlockHash(previous)
	rep, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Representative = Account(rep)
	balance, err := c.bytes16()
	if err != nil {
		return nil, err
	}
	b.Balance = AmountFromBytes(balance)
	link, err := c.bytes32()
	if err != nil {
		return nil, err
	}
	b.Link = link
	sig, err := c.bytes64()
	if err != nil {
		return nil, err
	}
	b.Signature = Signature(sig)
	if c.pos != len(c.buf) {
		return nil, xerr(ERR_STREAM_TRUNCATED, "block: trailing bytes after signature")
	}
	return b, nil
}

func decodeTypeOpcodeCommonHead(c *cursor, b *Block) error {
	if err := c.need(1); err != nil {
		return err
	}
	c.pos++ // type already consumed by caller dispatch
	if err := c.need(1); err != nil {
		return err
	}
	b.Opcode = Opcode(c.buf[c.pos])
	c.pos++
	credit, err := c.u16()
	if err != nil {
		return err
	}
	b.Credit = credit
	counter, err := c.u32()
	if err != nil {
		return err
	}
	b.Counter = counter
	ts, err := c.u64()
	if err != nil {
		return err
	}
	b.Timestamp = int64(ts)
	height, err := c.u64()
	if err != nil {
		return err
	}
	b.Height = height
	return nil
}
