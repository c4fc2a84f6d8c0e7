package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
)

// DefaultTopic receives crosswalk records unless overridden.
const DefaultTopic = "crosswalk.events"

const (
	maxRetries  = 3
	baseBackoff = 50 * time.Millisecond
)

// KafkaConfig configures KafkaSink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// VerdictsEnabled publishes a record for every frame, not only alerts.
	VerdictsEnabled bool
	FlushTimeout    time.Duration
}

// producer is the subset of *kafka.Producer the sink uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaSink publishes records as JSON messages keyed by session ID, so that
// a session's records stay ordered within one partition.
type KafkaSink struct {
	producer     producer
	cfg          KafkaConfig
	deliveryChan chan kafka.Event
	log          zerolog.Logger

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// KafkaStats are delivery counters.
type KafkaStats struct {
	Sent   int64 `json:"sent"`
	Acked  int64 `json:"acked"`
	Failed int64 `json:"failed"`
}

// NewKafkaSink connects a producer to cfg.Brokers.
func NewKafkaSink(cfg KafkaConfig, log zerolog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   strings.Join(cfg.Brokers, ","),
		"client.id":           "crosswalk-assistant",
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           5,
		"compression.type":    "snappy",
		"delivery.timeout.ms": 30000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return newKafkaSink(p, cfg, log), nil
}

func newKafkaSink(p producer, cfg KafkaConfig, log zerolog.Logger) *KafkaSink {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	s := &KafkaSink{
		producer:     p,
		cfg:          cfg,
		deliveryChan: make(chan kafka.Event, 1024),
		log:          log,
	}
	s.wg.Add(1)
	go s.handleDeliveryReports()
	return s
}

func (s *KafkaSink) handleDeliveryReports() {
	defer s.wg.Done()
	for e := range s.deliveryChan {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			s.failed.Add(1)
			s.log.Warn().Err(m.TopicPartition.Error).Msg("kafka delivery failed")
			continue
		}
		s.acked.Add(1)
	}
}

// Publish enqueues r. Verdict records are dropped unless VerdictsEnabled.
func (s *KafkaSink) Publish(ctx context.Context, r Record) error {
	if r.Type == TypeVerdict && !s.cfg.VerdictsEnabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.cfg.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(r.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(r.Type)},
			{Key: "status", Value: []byte(r.Status)},
		},
		Timestamp: r.Timestamp,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(baseBackoff * time.Duration(1<<uint(attempt-1))):
			}
		}
		err := s.producer.Produce(msg, s.deliveryChan)
		if err == nil {
			s.sent.Add(1)
			return nil
		}
		lastErr = err
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() != kafka.ErrQueueFull && !kerr.IsRetriable() {
			break
		}
	}
	s.failed.Add(1)
	return fmt.Errorf("produce %s record: %w", r.Type, lastErr)
}

// Stats returns the delivery counters.
func (s *KafkaSink) Stats() KafkaStats {
	return KafkaStats{Sent: s.sent.Load(), Acked: s.acked.Load(), Failed: s.failed.Load()}
}

// Close flushes pending messages and closes the producer.
func (s *KafkaSink) Close() error {
	var remaining int
	s.closeOnce.Do(func() {
		remaining = s.producer.Flush(int(s.cfg.FlushTimeout.Milliseconds()))
		s.producer.Close()
		close(s.deliveryChan)
		s.wg.Wait()
	})
	if remaining > 0 {
		return fmt.Errorf("%d kafka messages still queued after flush", remaining)
	}
	return nil
}
