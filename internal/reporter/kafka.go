package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/sourcewatch/internal/core"
)

// KafkaName is the type name of the Kafka reporter.
const KafkaName = "kafka"

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultEncoding     = "json"
	defaultMaxAttempts  = 3
)

// KafkaConfig represents Kafka reporter configuration.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4|zstd, default snappy
	Encoding     string        `mapstructure:"encoding"`      // json|protobuf, default json
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 3
}

// KafkaReporter publishes records to a Kafka topic. Writes are async so a
// slow broker never stalls the consumer loop; delivery failures surface
// through the completion callback.
type KafkaReporter struct {
	config KafkaConfig
	writer *kafka.Writer
	encode func(record) ([]byte, error)

	reported atomic.Uint64
	failed   atomic.Uint64
}

// NewKafkaReporter creates a Kafka reporter.
func NewKafkaReporter(options map[string]any) (Reporter, error) {
	cfg := KafkaConfig{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		Encoding:     defaultEncoding,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, fmt.Errorf("kafka reporter: %w", err)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka reporter: %w: brokers is required", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka reporter: %w: topic is required", core.ErrConfigInvalid)
	}

	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("kafka reporter: %w", err)
	}

	r := &KafkaReporter{config: cfg}
	switch cfg.Encoding {
	case "json":
		r.encode = encodeJSON
	case "protobuf":
		r.encode = encodeProto
	default:
		return nil, fmt.Errorf("kafka reporter: %w: invalid encoding %q", core.ErrConfigInvalid, cfg.Encoding)
	}

	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  compression,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   r.completion,
	}

	slog.Info("kafka reporter created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"batch_size", cfg.BatchSize,
		"batch_timeout", cfg.BatchTimeout,
		"compression", cfg.Compression,
		"encoding", cfg.Encoding,
	)
	return r, nil
}

// Name returns the reporter name.
func (r *KafkaReporter) Name() string { return KafkaName }

// Report queues rec for delivery. The key is the source address so records
// from one source stay on one partition.
func (r *KafkaReporter) Report(ctx context.Context, rec core.SourceAddr) error {
	now := time.Now()
	value, err := r.encode(newRecord(rec, now))
	if err != nil {
		r.failed.Inc()
		return fmt.Errorf("encode record failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.IP().String()),
		Value: value,
		Time:  now,
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.failed.Inc()
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (r *KafkaReporter) completion(messages []kafka.Message, err error) {
	if err != nil {
		r.failed.Add(uint64(len(messages)))
		slog.Warn("kafka delivery failed", "topic", r.config.Topic, "messages", len(messages), "error", err)
		return
	}
	r.reported.Add(uint64(len(messages)))
}

// Close flushes pending messages and closes the writer.
func (r *KafkaReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	slog.Info("kafka reporter stopped",
		"total_reported", r.reported.Load(),
		"total_errors", r.failed.Load(),
	)
	return nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("%w: invalid compression type %q", core.ErrConfigInvalid, name)
	}
}

func encodeJSON(rec record) ([]byte, error) {
	return json.Marshal(rec)
}

// encodeProto encodes rec as a google.protobuf.Struct so consumers need no
// generated schema.
func encodeProto(rec record) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"addr":         rec.Addr,
		"addr_raw":     float64(rec.AddrRaw),
		"port":         float64(rec.Port),
		"timestamp_ms": float64(rec.TimestampMs),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}
