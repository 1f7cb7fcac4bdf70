package consensus

import "time"

// Numeric parameters from section 8 ("Literal numeric parameters to
// use in tests"); treated as contract, not tunables.
const (
	TransactionsPerCredit = 20

	MaxTimestampDiff      = 150 * time.Second
	MinConfirmInterval    = 45 * time.Second
	ConfirmWeightPercent  = 51
	ForkElectionRoundsThreshold = 20
	ForkElectionDelay     = 5 * time.Second
	ForkElectionInterval  = 5 * time.Second
	NonForkElectionDelay    = 10 * time.Second
	NonForkElectionInterval = 15 * time.Second
	CookieCutoffTime = 3 * time.Second
	CutoffTime       = 900 * time.Second

	// MaxExtensionsLen bounds the transaction-block extensions blob.
	MaxExtensionsLen = 1024

	// InvalidHeight is the reserved "none" sentinel (2^64-1).
	InvalidHeight Height = ^Height(0)

	// MaxClockSkew is how far a block timestamp may run ahead of wall
	// clock before it is rejected (section 3).
	MaxClockSkew = 60 * time.Second
)
