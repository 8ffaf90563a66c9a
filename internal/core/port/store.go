package port

import (
	"context"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
)

// IndexStateStore persists the handler's progress and the hashes of the
// blocks it has committed.
type IndexStateStore interface {
	LoadIndexState(ctx context.Context) (entity.IndexState, error)
	SaveIndexState(ctx context.Context, state entity.IndexState) error
	// RollbackTo discards every committed block above number and returns the
	// resulting state.
	RollbackTo(ctx context.Context, number uint64) (entity.IndexState, error)
}
