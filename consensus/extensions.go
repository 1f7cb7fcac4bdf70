package consensus

import "encoding/binary"

// ExtensionRecord is one length-prefixed typed sub-record inside a
// transaction block's extensions blob (original_source
// rai/common/extensions.cpp). The core does not interpret record
// contents (alias/token/crosschain semantics are out of scope, section
// 1); Records exists only so the max-length / truncation invariant can
// be enforced and so the JSON "extensions" array form can be
// normalized back to raw bytes.
type ExtensionRecord struct {
	Type    uint16
	Payload []byte
}

// Records decodes raw as a sequence of (type uint16 LE, length uint16
// LE, payload) records, returning ERR_STREAM_TRUNCATED when a record
// is cut short. An empty blob decodes to zero records.
func Records(raw []byte) ([]ExtensionRecord, error) {
	var out []ExtensionRecord
	pos := 0
	for pos < len(raw) {
		if pos+4 > len(raw) {
			return nil, xerr(ERR_STREAM_TRUNCATED, "extensions: truncated record header")
		}
		typ := binary.LittleEndian.Uint16(raw[pos:])
		length := binary.LittleEndian.Uint16(raw[pos+2:])
		pos += 4
		if pos+int(length) > len(raw) {
			return nil, xerr(ERR_STREAM_TRUNCATED, "extensions: truncated record payload")
		}
		out = append(out, ExtensionRecord{Type: typ, Payload: append([]byte(nil), raw[pos:pos+int(length)]...)})
		pos += int(length)
	}
	return out, nil
}

// EncodeRecords is the inverse of Records, used to normalize the JSON
// "extensions" array form to the canonical raw blob.
func EncodeRecords(records []ExtensionRecord) []byte {
	out := make([]byte, 0, len(records)*8)
	for _, r := range records {
		out = appendU16(out, r.Type)
		out = appendU16(out, uint16(len(r.Payload)))
		out = append(out, r.Payload...)
	}
	return out
}
