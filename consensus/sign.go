package consensus

import "crypto/ed25519"

// Hash computes the BlockHash of b: BLAKE2b-256 over every field
// except the signature (section 3, section 6.1).
func (b *Block) Hash() BlockHash {
	return BlockHashOf(SigningBytes(b))
}

// VerifySignature checks that b.Signature verifies under b.Account
// (interpreted as an Ed25519 public key) over b.Hash(), per the
// section-3 signature invariant.
func VerifySignature(b *Block) error {
	hash := b.Hash()
	if !ed25519.Verify(ed25519.PublicKey(b.Account[:]), hash[:], b.Signature[:]) {
		return xerr(ERR_BAD_SIGNATURE, "block: signature does not verify")
	}
	return nil
}

// Sign computes b.Hash() and sets b.Signature from priv, returning the
// hash for convenience. Used by tests and by the (out-of-scope) wallet
// daemon's test doubles; the core itself only ever verifies.
func Sign(b *Block, priv ed25519.PrivateKey) BlockHash {
	hash := b.Hash()
	sig := ed25519.Sign(priv, hash[:])
	copy(b.Signature[:], sig)
	return hash
}
