package store

import (
	"context"
	"math/big"
	"net"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ entries []string }

func (l *testLogger) Info(msg string, args ...any)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *testLogger) Warn(msg string, args ...any)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *testLogger) Error(msg string, args ...any) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *testLogger) Debug(msg string, args ...any) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *testLogger) Trace(msg string, args ...any) { l.entries = append(l.entries, "TRACE:"+msg) }
func (l *testLogger) Fatal(msg string, args ...any) { l.entries = append(l.entries, "FATAL:"+msg) }

func runMiniRedis(t *testing.T) (*miniredis.Miniredis, string, string) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	host, port, _ := net.SplitHostPort(s.Addr())
	return s, host, port
}

func validStoreConfig(host, port string) Config {
	return Config{
		Host:               host,
		Port:               port,
		PoolSize:           2,
		MaxRetries:         1,
		DialTimeoutSeconds: 1,
		KeyPrefix:          "{blockwatch}",
		WriteRetryAttempts: 1,
	}
}

func newTestStore(t *testing.T, mutate func(*Config)) (*RedisIndexStore, *miniredis.Miniredis) {
	t.Helper()
	mr, host, port := runMiniRedis(t)
	cfg := validStoreConfig(host, port)
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewRedisIndexStore(&testLogger{}, validator.New(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func hashOf(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(0xb10c00 + n))
}

func stateAt(n uint64) entity.IndexState {
	return entity.IndexState{BlockNumber: n, BlockHash: hashOf(n), HandlerVersionName: "v1"}
}

func TestNewRedisIndexStore_InvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"non numeric port", func(c *Config) { c.Port = "redis" }},
		{"missing prefix", func(c *Config) { c.KeyPrefix = "" }},
		{"negative db", func(c *Config) { c.DB = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validStoreConfig("localhost", "6379")
			tc.mutate(&cfg)
			_, err := NewRedisIndexStore(&testLogger{}, validator.New(), &cfg)
			var se *apperr.IndexStateErr
			require.ErrorAs(t, err, &se)
		})
	}
}

func TestRedisIndexStore_LoadEmpty(t *testing.T) {
	s, _ := newTestStore(t, nil)
	require.NoError(t, s.Ping(context.Background()))

	state, err := s.LoadIndexState(context.Background())
	require.NoError(t, err)
	require.True(t, state.IsZero())
}

func TestRedisIndexStore_SaveAndLoad(t *testing.T) {
	s, mr := newTestStore(t, nil)
	ctx := context.Background()

	want := stateAt(7)
	want.UpdatedAt = time.UnixMilli(1_700_000_000_123)
	require.NoError(t, s.SaveIndexState(ctx, want))

	got, err := s.LoadIndexState(ctx)
	require.NoError(t, err)
	require.Equal(t, want.BlockNumber, got.BlockNumber)
	require.Equal(t, want.BlockHash, got.BlockHash)
	require.Equal(t, "v1", got.HandlerVersionName)
	require.Equal(t, want.UpdatedAt.UnixMilli(), got.UpdatedAt.UnixMilli())

	members, err := mr.ZMembers("{blockwatch}:blocks")
	require.NoError(t, err)
	require.Equal(t, []string{hashOf(7).Hex()}, members)
}

func TestRedisIndexStore_SaveReplacesHashAtSameHeight(t *testing.T) {
	s, mr := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.SaveIndexState(ctx, stateAt(3)))
	replaced := stateAt(3)
	replaced.BlockHash = common.HexToHash("0xabc")
	require.NoError(t, s.SaveIndexState(ctx, replaced))

	members, err := mr.ZMembers("{blockwatch}:blocks")
	require.NoError(t, err)
	require.Equal(t, []string{replaced.BlockHash.Hex()}, members)
}

func TestRedisIndexStore_SaveTrimsHistory(t *testing.T) {
	s, mr := newTestStore(t, func(c *Config) { c.HistoryRetention = 2 })
	ctx := context.Background()

	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, s.SaveIndexState(ctx, stateAt(n)))
	}

	members, err := mr.ZMembers("{blockwatch}:blocks")
	require.NoError(t, err)
	require.Equal(t, []string{hashOf(3).Hex(), hashOf(4).Hex(), hashOf(5).Hex()}, members)
}

func TestRedisIndexStore_RollbackTo(t *testing.T) {
	s, mr := newTestStore(t, nil)
	ctx := context.Background()
	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, s.SaveIndexState(ctx, stateAt(n)))
	}

	state, err := s.RollbackTo(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), state.BlockNumber)
	require.Equal(t, hashOf(3), state.BlockHash)
	require.Equal(t, "v1", state.HandlerVersionName)

	loaded, err := s.LoadIndexState(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), loaded.BlockNumber)
	require.Equal(t, hashOf(3), loaded.BlockHash)

	members, err := mr.ZMembers("{blockwatch}:blocks")
	require.NoError(t, err)
	require.Equal(t, []string{hashOf(1).Hex(), hashOf(2).Hex(), hashOf(3).Hex()}, members)
}

func TestRedisIndexStore_RollbackToUnknownBlock(t *testing.T) {
	s, _ := newTestStore(t, func(c *Config) { c.HistoryRetention = 1 })
	ctx := context.Background()
	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, s.SaveIndexState(ctx, stateAt(n)))
	}

	_, err := s.RollbackTo(ctx, 2)
	var se *apperr.IndexStateErr
	require.ErrorAs(t, err, &se)
	require.Contains(t, err.Error(), "no committed block at 2")

	loaded, err := s.LoadIndexState(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), loaded.BlockNumber)
}

func TestRedisIndexStore_RollbackToGenesisClears(t *testing.T) {
	s, mr := newTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, s.SaveIndexState(ctx, stateAt(1)))

	state, err := s.RollbackTo(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, state.BlockNumber)
	require.Equal(t, "v1", state.HandlerVersionName)
	require.False(t, mr.Exists("{blockwatch}:state"))
	require.False(t, mr.Exists("{blockwatch}:blocks"))
}

func TestRedisIndexStore_CorruptState(t *testing.T) {
	s, mr := newTestStore(t, nil)
	mr.HSet("{blockwatch}:state", "number", "not-a-number")

	_, err := s.LoadIndexState(context.Background())
	var se *apperr.IndexStateErr
	require.ErrorAs(t, err, &se)
}

func TestRedisIndexStore_SaveFailsWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t, nil)
	mr.Close()

	err := s.SaveIndexState(context.Background(), stateAt(1))
	var se *apperr.IndexStateErr
	require.ErrorAs(t, err, &se)
}

func TestClusterHashTag(t *testing.T) {
	cases := map[string]string{
		"{blockwatch}":         "blockwatch",
		"{blockwatch}:mainnet": "blockwatch",
		"blockwatch":           "blockwatch",
		"{}":                   "{}",
	}
	for in, want := range cases {
		require.Equal(t, want, clusterHashTag(in), in)
	}
}
