package port

import (
	"context"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

// ActionReader delivers blocks in sequence and can move its read position.
// Implementations are driven by a single watcher loop. Only the two number
// accessors are read from other goroutines.
type ActionReader interface {
	// CurrentBlockNumber is the number of the last block returned by NextBlock.
	CurrentBlockNumber() uint64
	// HeadBlockNumber is the newest block number the reader is allowed to return.
	HeadBlockNumber() uint64
	// NextBlock returns the block after CurrentBlockNumber, or the current
	// block with Meta.IsNewBlock unset when the reader is at its head.
	NextBlock(ctx context.Context) (*entity.NextBlock, error)
	// SeekToBlock moves the position so the next NextBlock yields number+1.
	SeekToBlock(ctx context.Context, number uint64) error
}
