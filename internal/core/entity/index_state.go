package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// IndexState is the handler's persisted progress.
type IndexState struct {
	BlockNumber        uint64
	BlockHash          common.Hash
	HandlerVersionName string
	UpdatedAt          time.Time
}

// IsZero reports whether nothing has been indexed yet.
func (s IndexState) IsZero() bool {
	return s.BlockNumber == 0 && s.BlockHash == (common.Hash{})
}
