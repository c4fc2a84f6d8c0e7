package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	errs     []error // returned by successive Produce calls before succeeding
	fail     error   // delivery report error
	closed   bool
	queued   int
}

func (p *fakeProducer) Produce(msg *kafka.Message, ch chan kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	p.messages = append(p.messages, msg)
	report := *msg
	report.TopicPartition.Error = p.fail
	ch <- &report
	return nil
}

func (p *fakeProducer) Flush(int) int { return p.queued }
func (p *fakeProducer) Close()        { p.closed = true }

func (p *fakeProducer) sent() []*kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*kafka.Message(nil), p.messages...)
}

func alertRecord() Record {
	return Record{
		Type:       TypeAlert,
		SessionID:  "s-1",
		FrameIndex: 7,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		Status:     "moving",
		AlertID:    "a-1",
		Message:    "Warning! Vehicles are moving. Do not cross.",
		Language:   "en",
	}
}

func TestMemorySink(t *testing.T) {
	s := &MemorySink{}
	require.NoError(t, s.Publish(context.Background(), Record{Type: TypeVerdict}))
	require.NoError(t, s.Publish(context.Background(), alertRecord()))
	assert.Len(t, s.Records(), 2)
	assert.Len(t, s.OfType(TypeAlert), 1)
	assert.NoError(t, s.Close())
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	assert.NoError(t, s.Publish(context.Background(), alertRecord()))
	assert.NoError(t, s.Close())
}

func TestKafkaSink_PublishAlert(t *testing.T) {
	p := &fakeProducer{}
	s := newKafkaSink(p, KafkaConfig{}, zerolog.Nop())

	require.NoError(t, s.Publish(context.Background(), alertRecord()))
	require.NoError(t, s.Close())
	assert.True(t, p.closed)

	msgs := p.sent()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, DefaultTopic, *m.TopicPartition.Topic)
	assert.Equal(t, "s-1", string(m.Key))
	assert.Equal(t, []kafka.Header{
		{Key: "type", Value: []byte(TypeAlert)},
		{Key: "status", Value: []byte("moving")},
	}, m.Headers)

	var got Record
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, alertRecord(), got)

	assert.Equal(t, KafkaStats{Sent: 1, Acked: 1}, s.Stats())
}

func TestKafkaSink_VerdictsFiltered(t *testing.T) {
	p := &fakeProducer{}
	s := newKafkaSink(p, KafkaConfig{Topic: "t"}, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), Record{Type: TypeVerdict, SessionID: "s"}))
	require.NoError(t, s.Close())
	assert.Empty(t, p.sent())

	p = &fakeProducer{}
	s = newKafkaSink(p, KafkaConfig{Topic: "t", VerdictsEnabled: true}, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), Record{Type: TypeVerdict, SessionID: "s"}))
	require.NoError(t, s.Close())
	assert.Len(t, p.sent(), 1)
}

func TestKafkaSink_DeliveryFailureCounted(t *testing.T) {
	p := &fakeProducer{fail: errors.New("broker down")}
	s := newKafkaSink(p, KafkaConfig{}, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), alertRecord()))
	require.NoError(t, s.Close())
	assert.Equal(t, KafkaStats{Sent: 1, Failed: 1}, s.Stats())
}

func TestKafkaSink_RetriesRetriable(t *testing.T) {
	queueFull := kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	p := &fakeProducer{errs: []error{queueFull}}
	s := newKafkaSink(p, KafkaConfig{}, zerolog.Nop())
	require.NoError(t, s.Publish(context.Background(), alertRecord()))
	require.NoError(t, s.Close())
	assert.Len(t, p.sent(), 1)
}

func TestKafkaSink_PlainErrorExhaustsRetries(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeProducer{errs: []error{boom, boom, boom, boom}}
	s := newKafkaSink(p, KafkaConfig{}, zerolog.Nop())
	err := s.Publish(context.Background(), alertRecord())
	assert.ErrorIs(t, err, boom)
	require.NoError(t, s.Close())
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestKafkaSink_CloseReportsQueued(t *testing.T) {
	s := newKafkaSink(&fakeProducer{queued: 2}, KafkaConfig{}, zerolog.Nop())
	assert.Error(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestKafkaSink_CanceledContext(t *testing.T) {
	s := newKafkaSink(&fakeProducer{}, KafkaConfig{}, zerolog.Nop())
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Publish(ctx, alertRecord()), context.Canceled)
}

func TestNewKafkaSink_NoBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
