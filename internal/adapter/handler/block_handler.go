package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
)

const headerHandlerVersion = "handler-version"

// BlockHandler applies blocks to a persisted index state and publishes one
// event per applied block. It only accepts a block that extends the last
// committed one; otherwise it rolls back, or asks the watcher to resume
// from the block it needs next.
type BlockHandler struct {
	log       applog.AppLogger
	store     port.IndexStateStore
	publisher port.Publisher
	cfg       Config
	v         *validator.Validate
	m         *imetrics.HandlerMetrics

	loaded bool

	mu         sync.RWMutex
	lastNumber uint64
	lastHash   common.Hash
}

var _ port.ActionHandler = (*BlockHandler)(nil)

func NewBlockHandler(log applog.AppLogger, store port.IndexStateStore, publisher port.Publisher, cfg *Config, v *validator.Validate) (*BlockHandler, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid handler config", "err", err)
		return nil, apperr.NewBlockHandleErr("invalid config", err)
	}
	if store == nil {
		return nil, apperr.NewInvalidArgErr("index state store is required", nil)
	}
	if publisher == nil {
		return nil, apperr.NewInvalidArgErr("publisher is required", nil)
	}

	return &BlockHandler{
		log:       log,
		store:     store,
		publisher: publisher,
		cfg:       *cfg,
		v:         v,
		m:         imetrics.Handler(),
	}, nil
}

// HandleBlock applies next.Block and returns zero, or returns the number of
// the block the handler needs next when next.Block does not follow the
// committed state. In replay mode the state is updated without publishing.
func (h *BlockHandler) HandleBlock(ctx context.Context, next *entity.NextBlock, isReplay bool) (uint64, error) {
	if next == nil || next.Block == nil {
		return 0, apperr.NewInvalidArgErr("block is required", nil)
	}
	if err := h.v.Struct(next.Block); err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentHandler, "invalid_block").Inc()
		return 0, apperr.NewBlockHandleErr(fmt.Sprintf("invalid block %d", next.Block.Number()), err)
	}
	started := time.Now()
	defer func() { h.m.HandleLatencyMS.Observe(float64(time.Since(started).Milliseconds())) }()

	if err := h.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	blk := next.Block
	number := blk.Number()
	last, lastHash := h.progress()
	hasHistory := lastHash != (common.Hash{})

	if !next.Meta.IsRollback && hasHistory && number == last && blk.Hash == lastHash {
		h.log.Trace("Skipping already applied block", "number", number, "hash", blk.Hash.Hex())
		return 0, nil
	}

	if next.Meta.IsEarliestBlock && !next.Meta.IsRollback && !isReplay && hasHistory && last >= number {
		h.m.RewindRequestsTotal.Inc()
		h.log.Info("Resuming after committed index state", "start_block", number, "last_processed", last)
		return last + 1, nil
	}

	if hasHistory && last >= number {
		target := uint64(0)
		if number > 0 {
			target = number - 1
		}
		if err := h.rollbackTo(ctx, target, isReplay); err != nil {
			return 0, err
		}
		last, lastHash = h.progress()
		hasHistory = lastHash != (common.Hash{})
	}

	if hasHistory {
		if number != last+1 {
			h.m.RewindRequestsTotal.Inc()
			h.log.Debug("Block does not follow committed state, requesting rewind", "number", number, "needed", last+1)
			return last + 1, nil
		}
		if blk.Header.ParentHash != lastHash {
			imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentHandler, "parent_mismatch").Inc()
			return 0, apperr.NewBlockHandleErr(
				fmt.Sprintf("block %d parent %s does not match committed hash %s", number, blk.Header.ParentHash.Hex(), lastHash.Hex()), nil)
		}
	}

	if err := h.apply(ctx, blk, isReplay); err != nil {
		return 0, err
	}
	return 0, nil
}

func (h *BlockHandler) LastProcessedBlockNumber() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastNumber
}

func (h *BlockHandler) LastProcessedBlockHash() common.Hash {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHash
}

func (h *BlockHandler) HandlerVersionName() string { return h.cfg.VersionName }

func (h *BlockHandler) apply(ctx context.Context, blk *entity.Block, isReplay bool) error {
	if !isReplay {
		if err := h.publisher.PublishBlock(ctx, blk, h.eventHeaders()); err != nil {
			return apperr.NewBlockHandleErr(fmt.Sprintf("failed to publish block %d", blk.Number()), err)
		}
	}

	state := entity.IndexState{
		BlockNumber:        blk.Number(),
		BlockHash:          blk.Hash,
		HandlerVersionName: h.cfg.VersionName,
		UpdatedAt:          time.Now(),
	}
	if err := h.store.SaveIndexState(ctx, state); err != nil {
		return apperr.NewBlockHandleErr(fmt.Sprintf("failed to commit block %d", blk.Number()), err)
	}

	h.setProgress(state.BlockNumber, state.BlockHash)
	h.m.BlocksTotal.WithLabelValues(imetrics.Mode(isReplay)).Inc()
	h.log.Trace("Applied block", "number", state.BlockNumber, "hash", state.BlockHash.Hex(), "replay", isReplay)
	return nil
}

func (h *BlockHandler) rollbackTo(ctx context.Context, number uint64, isReplay bool) error {
	from := h.LastProcessedBlockNumber()
	state, err := h.store.RollbackTo(ctx, number)
	if err != nil {
		return apperr.NewBlockHandleErr(fmt.Sprintf("failed to roll back to block %d", number), err)
	}
	if !isReplay {
		if err := h.publisher.PublishRollback(ctx, number, h.eventHeaders()); err != nil {
			return apperr.NewBlockHandleErr(fmt.Sprintf("failed to publish rollback to block %d", number), err)
		}
	}

	h.setProgress(state.BlockNumber, state.BlockHash)
	h.m.RollbacksTotal.Inc()
	h.log.Warn("Rolled back index state", "from", from, "to", number, "replay", isReplay)
	return nil
}

func (h *BlockHandler) ensureLoaded(ctx context.Context) error {
	if h.loaded {
		return nil
	}
	state, err := h.store.LoadIndexState(ctx)
	if err != nil {
		return apperr.NewBlockHandleErr("failed to load index state", err)
	}
	if state.HandlerVersionName != "" && state.HandlerVersionName != h.cfg.VersionName {
		h.log.Warn("Stored index state was written by another handler version",
			"stored_version", state.HandlerVersionName, "version", h.cfg.VersionName)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentHandler, "version_mismatch").Inc()
	}

	h.setProgress(state.BlockNumber, state.BlockHash)
	h.loaded = true
	h.log.Info("Loaded index state", "number", state.BlockNumber, "hash", state.BlockHash.Hex(), "version", h.cfg.VersionName)
	return nil
}

func (h *BlockHandler) eventHeaders() map[string]string {
	return map[string]string{headerHandlerVersion: h.cfg.VersionName}
}

func (h *BlockHandler) progress() (uint64, common.Hash) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastNumber, h.lastHash
}

func (h *BlockHandler) setProgress(number uint64, hash common.Hash) {
	h.mu.Lock()
	h.lastNumber, h.lastHash = number, hash
	h.mu.Unlock()
	h.m.LastProcessedBlock.Set(float64(number))
}
