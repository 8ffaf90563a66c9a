package port

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

// ActionHandler applies domain logic to blocks handed over by the watcher.
// The progress accessors may be called concurrently with HandleBlock.
type ActionHandler interface {
	// HandleBlock processes one block. A non-zero return asks the watcher to
	// resume from that block number; zero means continue normally.
	HandleBlock(ctx context.Context, next *entity.NextBlock, isReplay bool) (uint64, error)
	LastProcessedBlockNumber() uint64
	LastProcessedBlockHash() common.Hash
	HandlerVersionName() string
}
