package port

import (
	"context"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

// Publisher emits the handler's side effects to downstream consumers.
type Publisher interface {
	PublishBlock(ctx context.Context, block *entity.Block, headers map[string]string) error
	PublishRollback(ctx context.Context, toNumber uint64, headers map[string]string) error
}
