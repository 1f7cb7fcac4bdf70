package consensus

import (
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AccountPrefix is the fixed human-readable prefix for the
// checksum-carrying base32 account encoding (section 3).
const AccountPrefix = "rai_"

// accountChecksumLen is the number of trailing checksum bytes appended
// before base32 encoding, matching the Nano/Raicoin account-address
// convention this core descends from (original_source rai/common/numbers.cpp).
const accountChecksumLen = 5

// accountEncoding is the non-ambiguous base32 alphabet used by
// Nano-family addresses: digits and letters with 0, 1, 8, 9 removed so
// that no character is visually confused with another.
var accountEncoding = base32.NewEncoding("13456789abcdefghijkmnopqrstuwxyz").WithPadding(base32.NoPadding)

// String renders a as the checksum-carrying base32 account address.
func (a Account) String() string {
	checksum := accountChecksum(a)
	payload := make([]byte, 0, len(a)+len(checksum))
	payload = append(payload, a[:]...)
	payload = append(payload, checksum...)
	return AccountPrefix + accountEncoding.EncodeToString(payload)
}

// ParseAccount decodes a checksum-carrying base32 account address,
// verifying the checksum. It returns ERR_BAD_ENUM on malformed input
// (wrong prefix, bad base32, or checksum mismatch).
func ParseAccount(s string) (Account, error) {
	var out Account
	if !strings.HasPrefix(s, AccountPrefix) {
		return out, xerrf(ERR_BAD_ENUM, "account: missing prefix %q", AccountPrefix)
	}
	body := strings.TrimPrefix(s, AccountPrefix)
	raw, err := accountEncoding.DecodeString(body)
	if err != nil {
		return out, xerrf(ERR_BAD_ENUM, "account: bad base32: %v", err)
	}
	if len(raw) != len(out)+accountChecksumLen {
		return out, xerrf(ERR_BAD_ENUM, "account: wrong length %d", len(raw))
	}
	copy(out[:], raw[:len(out)])
	want := accountChecksum(out)
	got := raw[len(out):]
	for i := range want {
		if want[i] != got[i] {
			return Account{}, xerrf(ERR_BAD_ENUM, "account: checksum mismatch")
		}
	}
	return out, nil
}

// accountChecksum computes the BLAKE2b-based checksum bytes appended
// to the raw public key before base32 encoding, reversed so that a
// single-character typo is unlikely to also produce a valid checksum
// (matches the Nano/Raicoin convention).
func accountChecksum(a Account) []byte {
	h, err := blake2b.New(accountChecksumLen, nil)
	if err != nil {
		// accountChecksumLen (5) is within blake2b's valid digest-size
		// range; New only errors outside [1,64] or on a bad key.
		panic(err)
	}
	_, _ = h.Write(a[:])
	sum := h.Sum(nil)
	out := make([]byte, accountChecksumLen)
	for i := range sum {
		out[i] = sum[accountChecksumLen-1-i]
	}
	return out
}
