package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/pattern"
	"github.com/redis/go-redis/v9"
)

const (
	fieldNumber    = "number"
	fieldHash      = "hash"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at_ms"
)

// RedisIndexStore keeps the handler's index state in a Redis hash and the
// hashes of committed blocks in a sorted set scored by block number. Both
// keys share a cluster hash tag so every write can run in one MULTI.
//
// Concurrency: RedisIndexStore is safe for concurrent use.
type RedisIndexStore struct {
	rdb       *redis.Client
	log       applog.AppLogger
	cfg       Config
	stateKey  string
	blocksKey string
	retryOpts []pattern.RetryOption
}

var _ port.IndexStateStore = (*RedisIndexStore)(nil)

// NewRedisIndexStore creates a Redis client from the provided Config,
// validates the configuration and optionally enables TLS.
func NewRedisIndexStore(log applog.AppLogger, v *validator.Validate, cfg *Config) (*RedisIndexStore, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid redis config", "err", err)
		return nil, apperr.NewIndexStateErr("invalid redis config", err)
	}

	opts := &redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	attempts := cfg.WriteRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	tag := clusterHashTag(cfg.KeyPrefix)
	return &RedisIndexStore{
		rdb:       redis.NewClient(opts),
		log:       log,
		cfg:       *cfg,
		stateKey:  fmt.Sprintf("{%s}:state", tag),
		blocksKey: fmt.Sprintf("{%s}:blocks", tag),
		retryOpts: []pattern.RetryOption{
			pattern.WithMaxAttempts(attempts),
			pattern.WithInitialDelay(100 * time.Millisecond),
			pattern.WithMaxDelay(time.Second),
			pattern.WithJitter(0.2),
		},
	}, nil
}

// Ping checks connectivity to Redis.
func (s *RedisIndexStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return apperr.NewIndexStateErr("redis ping failed", err)
	}
	return nil
}

func (s *RedisIndexStore) Close() error {
	return s.rdb.Close()
}

// LoadIndexState returns the stored state, or a zero state when nothing has
// been committed yet.
func (s *RedisIndexStore) LoadIndexState(ctx context.Context) (entity.IndexState, error) {
	fields, err := s.rdb.HGetAll(ctx, s.stateKey).Result()
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, "load").Inc()
		return entity.IndexState{}, apperr.NewIndexStateErr("failed to load index state", err)
	}
	state, err := parseState(fields)
	if err != nil {
		return entity.IndexState{}, apperr.NewIndexStateErr("corrupt index state", err)
	}
	return state, nil
}

// SaveIndexState records state as the latest committed block and trims
// block hashes older than the configured retention.
func (s *RedisIndexStore) SaveIndexState(ctx context.Context, state entity.IndexState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	score := strconv.FormatUint(state.BlockNumber, 10)

	err := s.retry(ctx, "save", func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.stateKey, stateFields(state)...)
			pipe.ZRemRangeByScore(ctx, s.blocksKey, score, score)
			pipe.ZAdd(ctx, s.blocksKey, redis.Z{Score: float64(state.BlockNumber), Member: state.BlockHash.Hex()})
			if r := s.cfg.HistoryRetention; r > 0 && state.BlockNumber > r {
				pipe.ZRemRangeByScore(ctx, s.blocksKey, "-inf", "("+strconv.FormatUint(state.BlockNumber-r, 10))
			}
			return nil
		})
		return err
	})
	if err != nil {
		return apperr.NewIndexStateErr(fmt.Sprintf("failed to save index state at block %d", state.BlockNumber), err)
	}
	s.log.Trace("Saved index state", "number", state.BlockNumber, "hash", state.BlockHash.Hex())
	return nil
}

// RollbackTo discards every committed block above number and makes number
// the latest one. Rolling back to zero clears the state entirely.
func (s *RedisIndexStore) RollbackTo(ctx context.Context, number uint64) (entity.IndexState, error) {
	current, err := s.LoadIndexState(ctx)
	if err != nil {
		return entity.IndexState{}, err
	}

	if number == 0 {
		err := s.retry(ctx, "rollback", func() error {
			return s.rdb.Del(ctx, s.stateKey, s.blocksKey).Err()
		})
		if err != nil {
			return entity.IndexState{}, apperr.NewIndexStateErr("failed to clear index state", err)
		}
		s.log.Warn("Index state rolled back to genesis")
		return entity.IndexState{HandlerVersionName: current.HandlerVersionName}, nil
	}

	hash, err := s.hashAt(ctx, number)
	if err != nil {
		return entity.IndexState{}, err
	}

	state := entity.IndexState{
		BlockNumber:        number,
		BlockHash:          hash,
		HandlerVersionName: current.HandlerVersionName,
		UpdatedAt:          time.Now(),
	}
	err = s.retry(ctx, "rollback", func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, s.blocksKey, "("+strconv.FormatUint(number, 10), "+inf")
			pipe.HSet(ctx, s.stateKey, stateFields(state)...)
			return nil
		})
		return err
	})
	if err != nil {
		return entity.IndexState{}, apperr.NewIndexStateErr(fmt.Sprintf("failed to roll back index state to block %d", number), err)
	}
	s.log.Warn("Index state rolled back", "from", current.BlockNumber, "to", number, "hash", hash.Hex())
	return state, nil
}

func (s *RedisIndexStore) hashAt(ctx context.Context, number uint64) (common.Hash, error) {
	score := strconv.FormatUint(number, 10)
	members, err := s.rdb.ZRangeByScore(ctx, s.blocksKey, &redis.ZRangeBy{Min: score, Max: score}).Result()
	if err != nil {
		return common.Hash{}, apperr.NewIndexStateErr(fmt.Sprintf("failed to look up block %d", number), err)
	}
	if len(members) == 0 {
		return common.Hash{}, apperr.NewIndexStateErr(fmt.Sprintf("no committed block at %d", number), nil)
	}
	return common.HexToHash(members[0]), nil
}

func (s *RedisIndexStore) retry(ctx context.Context, op string, fn func() error) error {
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			if err := fn(); err != nil {
				s.log.Warn("Redis write failed", "op", op, "attempt", attempt, "err", err)
				return err
			}
			return nil
		},
		s.retryOpts...,
	)
	if err != nil {
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, op).Inc()
	}
	return err
}

func stateFields(state entity.IndexState) []any {
	return []any{
		fieldNumber, strconv.FormatUint(state.BlockNumber, 10),
		fieldHash, state.BlockHash.Hex(),
		fieldVersion, state.HandlerVersionName,
		fieldUpdatedAt, strconv.FormatInt(state.UpdatedAt.UnixMilli(), 10),
	}
}

func parseState(fields map[string]string) (entity.IndexState, error) {
	if len(fields) == 0 {
		return entity.IndexState{}, nil
	}

	var state entity.IndexState
	raw, ok := fields[fieldNumber]
	if !ok {
		return entity.IndexState{}, errors.New("missing field " + fieldNumber)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return entity.IndexState{}, fmt.Errorf("invalid %s: %w", fieldNumber, err)
	}
	state.BlockNumber = n
	state.BlockHash = common.HexToHash(fields[fieldHash])
	state.HandlerVersionName = fields[fieldVersion]
	if ms, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64); err == nil {
		state.UpdatedAt = time.UnixMilli(ms)
	}
	return state, nil
}

func clusterHashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start >= 0 {
		end := strings.IndexByte(key[start+1:], '}')
		if end >= 0 {
			tag := key[start+1 : start+1+end]
			if tag != "" {
				return tag
			}
		}
	}
	return key
}
