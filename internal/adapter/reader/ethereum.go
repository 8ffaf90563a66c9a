package reader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/core/usecase"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/pattern"
)

const defaultFetchTimeout = 10 * time.Second

// EthereumReader reads blocks from an Ethereum node over JSON-RPC in
// ascending order. It remembers the hashes of the most recent blocks so a
// reorganization can be followed back to the common ancestor.
//
// The first call to NextBlock or SeekToBlock connects to the node and
// resolves the configured start block. CurrentBlockNumber and
// HeadBlockNumber may be read from any goroutine; every other method must be
// driven by a single caller.
type EthereumReader struct {
	log           applog.AppLogger
	config        *Config
	newClient     func(context.Context) (ethereumClient, error)
	dialRetryOpts []pattern.RetryOption
	fetchTimeout  time.Duration
	m             *imetrics.ReaderMetrics

	client       ethereumClient
	initialized  bool
	startAt      uint64
	currentBlock *entity.Block
	history      []blockRef

	current atomic.Uint64
	head    atomic.Uint64
}

type blockRef struct {
	number uint64
	hash   common.Hash
}

var _ port.ActionReader = (*EthereumReader)(nil)

// NewEthereumReader validates cfg and returns a reader that dials
// cfg.RPCURL on first use.
func NewEthereumReader(log applog.AppLogger, cfg *Config, v *validator.Validate) (*EthereumReader, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid reader config", "err", err)
		return nil, apperr.NewBlockReadErr("invalid config", err)
	}

	r := &EthereumReader{
		log:          log,
		config:       cfg,
		fetchTimeout: defaultFetchTimeout,
		m:            imetrics.Reader(),
	}
	if cfg.FetchTimeoutMS > 0 {
		r.fetchTimeout = time.Duration(cfg.FetchTimeoutMS) * time.Millisecond
	}
	r.newClient = func(ctx context.Context) (ethereumClient, error) {
		return ethclient.DialContext(ctx, cfg.RPCURL)
	}
	r.dialRetryOpts = dialRetryOptionsFromConfig(cfg)
	return r, nil
}

// dialRetryOptionsFromConfig builds retry options from the provided Config.
func dialRetryOptionsFromConfig(cfg *Config) []pattern.RetryOption {
	var opts []pattern.RetryOption
	if cfg.DialMaxRetryAttempts > 0 {
		opts = append(opts, pattern.WithMaxAttempts(cfg.DialMaxRetryAttempts))
	} else {
		opts = append(opts, pattern.WithInfiniteAttempts())
	}
	if cfg.DialRetryInitialBackoffMS > 0 {
		opts = append(opts, pattern.WithInitialDelay(time.Duration(cfg.DialRetryInitialBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryMaxBackoffMS > 0 {
		opts = append(opts, pattern.WithMaxDelay(time.Duration(cfg.DialRetryMaxBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryJitter > 0 {
		opts = append(opts, pattern.WithJitter(cfg.DialRetryJitter))
	}
	return opts
}

func (r *EthereumReader) CurrentBlockNumber() uint64 { return r.current.Load() }

func (r *EthereumReader) HeadBlockNumber() uint64 { return r.head.Load() }

// StartBlockNumber is the resolved first block, or zero before the reader
// has initialized.
func (r *EthereumReader) StartBlockNumber() uint64 { return r.startAt }

// NextBlock returns the block after the current position. At the head it
// returns the current block with IsNewBlock unset. When the next block does
// not extend the remembered chain the reader walks back to the fork point
// and returns the first block of the new branch flagged as a rollback.
func (r *EthereumReader) NextBlock(ctx context.Context) (*entity.NextBlock, error) {
	if err := r.ensureInit(ctx); err != nil {
		return nil, err
	}

	if r.current.Load() >= r.head.Load() {
		if err := r.refreshHead(ctx); err != nil {
			return nil, err
		}
	}

	current := r.current.Load()
	if current >= r.head.Load() {
		return &entity.NextBlock{
			Block: r.currentBlock,
			Meta:  entity.BlockMeta{IsEarliestBlock: current == r.startAt},
		}, nil
	}

	blk, err := r.fetchBlock(ctx, current+1)
	if err != nil {
		return nil, err
	}

	isRollback := false
	if tip, ok := r.tip(); ok && blk.Header.ParentHash != tip.hash {
		r.log.Warn("Parent hash mismatch, resolving fork", "number", blk.Number(), "parent", blk.Header.ParentHash.Hex(), "expected", tip.hash.Hex())
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentReader, "fork").Inc()
		if blk, err = r.resolveFork(ctx, blk.Number()); err != nil {
			return nil, err
		}
		isRollback = true
	}

	r.push(blk)
	r.log.Trace("Read block", "number", blk.Number(), "hash", blk.Hash.Hex(), "head", r.head.Load())
	return &entity.NextBlock{
		Block: blk,
		Meta: entity.BlockMeta{
			IsNewBlock:      true,
			IsRollback:      isRollback,
			IsEarliestBlock: blk.Number() == r.startAt,
		},
	}, nil
}

// SeekToBlock moves the position to number so the next NextBlock yields
// number+1. number may be one below the start block but not above the head.
func (r *EthereumReader) SeekToBlock(ctx context.Context, number uint64) error {
	if err := r.ensureInit(ctx); err != nil {
		return err
	}
	if err := r.refreshHead(ctx); err != nil {
		return err
	}

	if number+1 < r.startAt {
		return apperr.NewBlockReadErr(fmt.Sprintf("cannot seek to block %d before start block %d", number, r.startAt), nil)
	}
	if head := r.head.Load(); number > head {
		return apperr.NewBlockReadErr(fmt.Sprintf("cannot seek to block %d past head block %d", number, head), nil)
	}

	blk, err := r.fetchBlock(ctx, number)
	if err != nil {
		return err
	}

	keep := 0
	for keep < len(r.history) && r.history[keep].number < number {
		keep++
	}
	r.history = r.history[:keep]
	if tip, ok := r.tip(); ok && tip.hash != blk.Header.ParentHash {
		r.history = r.history[:0]
	}
	r.push(blk)
	r.m.SeeksTotal.Inc()
	r.log.Info("Reader moved to block", "number", number, "hash", blk.Hash.Hex())
	return nil
}

// Close releases the node connection. The reader redials on next use.
func (r *EthereumReader) Close() {
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	r.m.Connected.Set(0)
}

func (r *EthereumReader) ensureInit(ctx context.Context) error {
	if r.initialized {
		return nil
	}
	if err := r.refreshHead(ctx); err != nil {
		return err
	}

	head := r.head.Load()
	r.startAt = resolveStartBlock(r.config.StartAtBlock, head)
	position := r.startAt - 1
	r.history = r.history[:0]
	r.currentBlock = nil
	if position <= head {
		blk, err := r.fetchBlock(ctx, position)
		if err != nil {
			return err
		}
		r.push(blk)
	}
	r.current.Store(position)
	r.initialized = true
	r.log.Info("Ethereum reader initialized", "start_block", r.startAt, "head", head, "finalized", r.config.FinalizedBlocks)
	return nil
}

func resolveStartBlock(startAt int64, head uint64) uint64 {
	switch {
	case startAt > 0:
		return uint64(startAt)
	case startAt == 0:
		return max(head, 1)
	default:
		back := uint64(-startAt)
		if back >= head {
			return 1
		}
		return head - back
	}
}

// resolveFork drops remembered blocks from number-1 downwards until the
// canonical block at that height links to the remaining history.
func (r *EthereumReader) resolveFork(ctx context.Context, number uint64) (*entity.Block, error) {
	replaced := 0
	for len(r.history) > 1 {
		orphan := r.history[len(r.history)-1]
		r.history = r.history[:len(r.history)-1]
		replaced++

		blk, err := r.fetchBlock(ctx, orphan.number)
		if err != nil {
			return nil, err
		}
		if tip, _ := r.tip(); blk.Header.ParentHash == tip.hash {
			r.m.ForksTotal.Inc()
			r.m.ForkDepth.Observe(float64(replaced))
			r.log.Warn("Resolved fork", "fork_point", tip.number, "depth", replaced, "new_hash", blk.Hash.Hex(), "orphaned_hash", orphan.hash.Hex())
			return blk, nil
		}
	}

	imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentReader, "fork_too_deep").Inc()
	return nil, apperr.NewBlockReadErr(fmt.Sprintf("fork below block %d exceeds the %d remembered blocks", number, r.config.MaxHistoryLength), nil)
}

func (r *EthereumReader) tip() (blockRef, bool) {
	if len(r.history) == 0 {
		return blockRef{}, false
	}
	return r.history[len(r.history)-1], true
}

func (r *EthereumReader) push(blk *entity.Block) {
	r.history = append(r.history, blockRef{number: blk.Number(), hash: blk.Hash})
	if over := len(r.history) - r.config.MaxHistoryLength; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
	r.currentBlock = blk
	r.current.Store(blk.Number())
}

func (r *EthereumReader) refreshHead(ctx context.Context) error {
	client, err := r.ensureClient(ctx)
	if err != nil {
		return err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	head, err := r.resolveHead(fetchCtx, client)
	if err != nil {
		if ctx.Err() == nil {
			r.dropClient("head")
		}
		return apperr.NewBlockReadErr("failed to resolve head block", err)
	}
	r.head.Store(head)
	return nil
}

func (r *EthereumReader) resolveHead(ctx context.Context, client ethereumClient) (uint64, error) {
	if r.config.FinalizedBlocks {
		header, err := client.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
		if err == nil && header != nil {
			return header.Number.Uint64(), nil
		}
		if err != nil {
			r.m.FetchErrorsTotal.WithLabelValues("header_by_number", classifyFetchError(err)).Inc()
			r.log.Debug("Finalized tag unavailable, falling back to confirmations", "err", err)
		}
	}

	latest, err := client.BlockNumber(ctx)
	if err != nil {
		r.m.FetchErrorsTotal.WithLabelValues("block_number", classifyFetchError(err)).Inc()
		return 0, err
	}
	if latest < r.config.Confirmations {
		return 0, nil
	}
	return latest - r.config.Confirmations, nil
}

func (r *EthereumReader) fetchBlock(ctx context.Context, number uint64) (*entity.Block, error) {
	client, err := r.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	started := time.Now()
	blk, err := client.BlockByNumber(fetchCtx, new(big.Int).SetUint64(number))
	r.m.FetchLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
	if err == nil && blk == nil {
		err = ethereum.NotFound
	}
	if err != nil {
		r.m.FetchErrorsTotal.WithLabelValues("block_by_number", classifyFetchError(err)).Inc()
		if ctx.Err() == nil && !errors.Is(err, ethereum.NotFound) {
			r.dropClient("fetch")
		}
		return nil, apperr.NewBlockReadErr(fmt.Sprintf("failed to fetch block %d", number), err)
	}
	r.m.FetchedBlocksTotal.Inc()
	return usecase.MapBlock(blk), nil
}

func (r *EthereumReader) ensureClient(ctx context.Context) (ethereumClient, error) {
	if r.client != nil {
		return r.client, nil
	}
	client, err := r.connectClient(ctx)
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentReader, classifyFetchError(err)).Inc()
		return nil, apperr.NewBlockReadErr("failed to connect to Ethereum node", err)
	}
	r.client = client
	r.m.Connected.Set(1)
	r.log.Trace("Connected to Ethereum node")
	return client, nil
}

func (r *EthereumReader) dropClient(reason string) {
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	r.m.Connected.Set(0)
	r.m.ReconnectsTotal.WithLabelValues(reason).Inc()
	r.log.Warn("Dropped Ethereum connection, will redial", "reason", reason)
	imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentReader, reason).Inc()
}

func (r *EthereumReader) connectClient(ctx context.Context) (ethereumClient, error) {
	var client ethereumClient
	opts := []pattern.RetryOption{
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(500 * time.Millisecond),
		pattern.WithMaxDelay(10 * time.Second),
		pattern.WithMultiplier(2.0),
		pattern.WithJitter(0.2),
	}
	if len(r.dialRetryOpts) > 0 {
		opts = append(opts, r.dialRetryOpts...)
	}
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			if r.newClient == nil {
				return apperr.NewBlockReadErr("client factory not configured", nil)
			}
			c, err := r.newClient(ctx)
			if err != nil {
				r.m.ReconnectsTotal.WithLabelValues("dial").Inc()
				r.log.Warn("Ethereum dial failed", "attempt", attempt, "err", err)
				imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentReader, "dial").Inc()
				return err
			}
			client = c
			return nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func classifyFetchError(err error) string {
	var netErr net.Error

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ethereum.NotFound):
		return "not_found"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "rpc"
	}
}

type ethereumClient interface {
	BlockByNumber(context.Context, *big.Int) (*types.Block, error)
	HeaderByNumber(context.Context, *big.Int) (*types.Header, error)
	BlockNumber(context.Context) (uint64, error)
	Close()
}
