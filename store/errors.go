package store

import (
	"fmt"

	"raicore.dev/ledger/consensus"
)

func xerrStoreDecode(table string) error {
	return &consensus.LedgerError{Code: consensus.STORE_ERR_DECODE, Msg: fmt.Sprintf("store: corrupt %s record", table)}
}

func wrapStoreErr(code consensus.ErrorCode, err error) error {
	return &consensus.LedgerError{Code: code, Msg: err.Error()}
}
