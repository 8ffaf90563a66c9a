package publish

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pancudaniel7/blockwatch-service/internal/core/entity"
	"github.com/pancudaniel7/blockwatch-service/internal/core/usecase"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/apperr"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	imetrics "github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/pattern"
)

const (
	defaultRetryAttempts       = 5
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 2 * time.Second
	defaultRetryJitter         = 0.2
	defaultWriteTimeout        = 10 * time.Second

	eventBlock    = "block"
	eventRollback = "rollback"
)

type kgoClient interface {
	BeginTransaction() error
	EndTransaction(context.Context, kgo.TransactionEndTry) error
	ProduceSync(context.Context, ...*kgo.Record) kgo.ProduceResults
	Close()
}

var newKgoClient = func(opts ...kgo.Opt) (kgoClient, error) {
	return kgo.NewClient(opts...)
}

// KafkaPublisher emits the block handler's effects to a Kafka topic: one
// record per applied block and one per rollback. Both kinds share the topic
// so consumers observe them in order.
type KafkaPublisher struct {
	log          applog.AppLogger
	client       kgoClient
	cfg          Config
	writeTimeout time.Duration
	retryOpts    []pattern.RetryOption
}

// NewKafkaPublisher builds a Kafka-backed publisher with validated configuration and retry settings.
func NewKafkaPublisher(log applog.AppLogger, cfg Config, v *validator.Validate) (*KafkaPublisher, error) {
	if err := v.Struct(cfg); err != nil {
		if log != nil {
			log.Error("invalid kafka publisher config", "err", err)
		}
		return nil, apperr.NewInvalidArgErr("invalid kafka publisher config", err)
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultRetryAttempts
	}

	initialBackoff := millisecondsOrDefault(cfg.RetryInitialBackoffMS, defaultRetryInitialBackoff)
	maxBackoff := millisecondsOrDefault(cfg.RetryMaxBackoffMS, defaultRetryMaxBackoff)
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	writeTimeout := secondsOrDefault(cfg.WriteTimeoutSeconds, defaultWriteTimeout)
	jitter := cfg.RetryJitter
	if jitter <= 0 {
		jitter = defaultRetryJitter
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.TransactionalID != "" {
		opts = append(opts, kgo.TransactionalID(cfg.TransactionalID))
	}
	client, err := newKgoClient(opts...)
	if err != nil {
		return nil, apperr.NewInvalidArgErr("failed to init kafka client", err)
	}

	kp := &KafkaPublisher{
		log:          log,
		client:       client,
		cfg:          cfg,
		writeTimeout: writeTimeout,
	}

	kp.retryOpts = []pattern.RetryOption{
		pattern.WithMaxAttempts(maxAttempts),
		pattern.WithInitialDelay(initialBackoff),
		pattern.WithMaxDelay(maxBackoff),
		pattern.WithJitter(jitter),
		pattern.WithShouldRetry(kp.shouldRetry),
	}

	return kp, nil
}

// PublishBlock serializes and publishes the given block into Kafka keyed by
// its hash. Extra headers are appended to the record.
func (kp *KafkaPublisher) PublishBlock(ctx context.Context, block *entity.Block, headers map[string]string) error {
	if block == nil {
		return apperr.NewInvalidArgErr("block is required", nil)
	}

	payload, err := usecase.MarshalBlockJSON(block)
	if err != nil {
		kp.log.Error("Failed to marshal block payload", "err", err)
		return apperr.NewBlockPublishErr("failed to marshal block payload", err)
	}

	rec := kp.buildRecord(block, payload, headers)
	if err := kp.produce(ctx, eventBlock, rec); err != nil {
		return apperr.NewBlockPublishErr("failed to publish block to kafka", err)
	}

	kp.log.Trace("Published block to Kafka", "topic", kp.cfg.Topic, "hash", block.Hash.Hex(), "number", block.Header.Number)
	return nil
}

// PublishRollback tells consumers to discard every block above toNumber.
func (kp *KafkaPublisher) PublishRollback(ctx context.Context, toNumber uint64, headers map[string]string) error {
	payload, err := usecase.MarshalRollbackJSON(toNumber)
	if err != nil {
		return apperr.NewBlockPublishErr("failed to marshal rollback payload", err)
	}

	rec := kp.buildRollbackRecord(toNumber, payload, headers)
	if err := kp.produce(ctx, eventRollback, rec); err != nil {
		return apperr.NewBlockPublishErr("failed to publish rollback to kafka", err)
	}

	kp.log.Info("Published rollback to Kafka", "topic", kp.cfg.Topic, "to_number", toNumber)
	return nil
}

// Close releases the underlying Kafka client.
func (kp *KafkaPublisher) Close() {
	if kp.client != nil {
		kp.client.Close()
	}
}

func (kp *KafkaPublisher) produce(ctx context.Context, event string, rec *kgo.Record) error {
	m := imetrics.Kafka()
	return pattern.Retry(ctx, func(attempt int) error {
		m.ProduceAttemptsTotal.WithLabelValues(event).Inc()
		// For transactional producers, wrap each message in a short transaction.
		if kp.cfg.TransactionalID != "" {
			if err := kp.client.BeginTransaction(); err != nil {
				m.ProduceErrorsTotal.WithLabelValues(event, "begin_tx").Inc()
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, kp.writeTimeout)
		defer cancel()

		started := time.Now()
		res := kp.client.ProduceSync(attemptCtx, rec)
		m.ProduceLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
		writeErr := res.FirstErr()
		if kp.cfg.TransactionalID != "" {
			// Try to commit if produce succeeded; abort on error.
			if writeErr == nil {
				if err := kp.client.EndTransaction(context.Background(), kgo.TryCommit); err != nil {
					writeErr = err
				}
			} else {
				_ = kp.client.EndTransaction(context.Background(), kgo.TryAbort)
			}
		}

		if writeErr != nil {
			if kp.shouldRetry(writeErr) {
				m.ProduceErrorsTotal.WithLabelValues(event, "retriable").Inc()
				kp.log.Warn("Kafka publish attempt failed", "attempt", attempt, "event", event, "topic", kp.cfg.Topic, "err", writeErr)
				imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentKafka, event).Inc()
			} else {
				m.ProduceErrorsTotal.WithLabelValues(event, "fatal").Inc()
				kp.log.Error("Kafka publish failed (non-retriable)", "event", event, "topic", kp.cfg.Topic, "err", writeErr)
				imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentKafka, event).Inc()
			}
			return writeErr
		}
		m.ProduceSuccessTotal.WithLabelValues(event).Inc()
		return nil
	}, kp.retryOpts...)
}

func (kp *KafkaPublisher) buildRecord(block *entity.Block, payload []byte, extras map[string]string) *kgo.Record {
	// Timestamp left to broker (CreateTime / LogAppendTime), not set explicitly.

	headers := []kgo.RecordHeader{
		{Key: "event", Value: []byte(eventBlock)},
		{Key: "block-number", Value: []byte(strconv.FormatUint(block.Header.Number, 10))},
		{Key: "block-hash", Value: []byte(block.Hash.Hex())},
	}

	return &kgo.Record{
		Topic:   kp.cfg.Topic,
		Key:     append([]byte(nil), block.Hash.Bytes()...),
		Value:   payload,
		Headers: appendExtraHeaders(headers, extras),
	}
}

func (kp *KafkaPublisher) buildRollbackRecord(toNumber uint64, payload []byte, extras map[string]string) *kgo.Record {
	number := strconv.FormatUint(toNumber, 10)
	headers := []kgo.RecordHeader{
		{Key: "event", Value: []byte(eventRollback)},
		{Key: "block-number", Value: []byte(number)},
	}

	return &kgo.Record{
		Topic:   kp.cfg.Topic,
		Key:     []byte(eventRollback + ":" + number),
		Value:   payload,
		Headers: appendExtraHeaders(headers, extras),
	}
}

// appendExtraHeaders adds caller headers in key order, skipping empty keys
// and keys the record already carries.
func appendExtraHeaders(headers []kgo.RecordHeader, extras map[string]string) []kgo.RecordHeader {
	keys := make([]string, 0, len(extras))
	for k := range extras {
		if k == "" || hasHeader(headers, k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(extras[k])})
	}
	return headers
}

func hasHeader(headers []kgo.RecordHeader, key string) bool {
	for _, h := range headers {
		if h.Key == key {
			return true
		}
	}
	return false
}

func (kp *KafkaPublisher) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	// Treat broker-marked retriable errors as retryable (leader changes,
	// coordinator load, not enough replicas, etc.).
	if kerr.IsRetriable(err) {
		return true
	}

	// When the topic may be provisioned shortly after startup, temporarily
	// retry UnknownTopicOrPartition to allow the provisioner to catch up.
	if errors.Is(err, kerr.UnknownTopicOrPartition) {
		return true
	}
	return false
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
