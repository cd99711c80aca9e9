// Package kafka broadcasts training lifecycle events so downstream systems
// (bot consoles, audit trails) can follow retraining without polling the
// model store.
package kafka

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// Writer is the slice of kafka.Writer the producer uses.  Tests substitute
// an in-memory implementation.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages with per-message topics on a shared writer.
type Producer struct {
	writer Writer
	logger logging.Logger
	closed atomic.Bool
}

// NewProducer connects a producer to the configured brokers.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "kafka brokers list is empty")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = time.Second
	}
	retries := cfg.ProducerRetries
	if retries == 0 {
		retries = 3
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  retries + 1,
		BatchTimeout: batchTimeout,
	}

	logger.Info("kafka producer ready", logging.String("brokers", strings.Join(cfg.Brokers, ",")))
	return &Producer{writer: writer, logger: logger.Named("kafka")}, nil
}

// NewProducerWithWriter wires a producer over an existing writer.
func NewProducerWithWriter(w Writer, logger logging.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Producer{writer: w, logger: logger.Named("kafka")}
}

// Publish writes one keyed message to a topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p.closed.Load() {
		return errors.New(errors.ErrCodeInternal, "kafka producer is closed")
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, errors.ErrCodeExternalService, "publish to %s", topic)
	}
	return nil
}

// Close flushes and shuts down the writer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}
