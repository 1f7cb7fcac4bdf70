package consensus

import "golang.org/x/crypto/blake2b"

// HashBytes returns the 256-bit BLAKE2b digest of b, used for
// BlockHash (section 3). The account checksum uses its own 5-byte
// BLAKE2b digest in account.go.
func HashBytes(b []byte) [32]byte {
	return blake2b.Sum256(b)
}

// BlockHashOf hashes the signing payload of a block: every field
// except the trailing signature, per section 6.1.
func BlockHashOf(signingPayload []byte) BlockHash {
	return BlockHash(HashBytes(signingPayload))
}
