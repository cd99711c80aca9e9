package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converso-ai/nlu-engine/internal/engine/training"
)

// memoryWriter captures written messages.
type memoryWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

var _ training.EventPublisher = (*TrainingEvents)(nil)

func newTestEvents() (*TrainingEvents, *memoryWriter) {
	w := &memoryWriter{}
	return NewTrainingEvents(NewProducerWithWriter(w, nil), nil), w
}

func TestTrainingStartedEvent(t *testing.T) {
	events, w := newTestEvents()

	events.TrainingStarted(context.Background(), "bot-1", "en", "hash-1")

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, TopicTrainingStarted, msg.Topic)
	assert.Equal(t, []byte("bot-1"), msg.Key)

	var event TrainingEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "bot-1", event.BotID)
	assert.Equal(t, "en", event.Language)
	assert.Equal(t, "hash-1", event.Hash)
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.EmittedAt.IsZero())
}

func TestTrainingFinishedTopicByOutcome(t *testing.T) {
	events, w := newTestEvents()
	ctx := context.Background()

	events.TrainingFinished(ctx, "bot-1", "en", "h", true, 2*time.Second)
	events.TrainingFinished(ctx, "bot-1", "en", "h", false, time.Second)

	require.Len(t, w.messages, 2)
	assert.Equal(t, TopicTrainingSucceeded, w.messages[0].Topic)
	assert.Equal(t, TopicTrainingFailed, w.messages[1].Topic)

	var event TrainingEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &event))
	assert.True(t, event.Success)
	assert.Equal(t, int64(2000), event.ElapsedMs)
}

func TestEmitSwallowsBrokerFailure(t *testing.T) {
	w := &memoryWriter{err: assert.AnError}
	events := NewTrainingEvents(NewProducerWithWriter(w, nil), nil)

	// Must not panic or propagate.
	events.TrainingStarted(context.Background(), "bot-1", "en", "h")
	events.TrainingFinished(context.Background(), "bot-1", "en", "h", true, time.Second)
	assert.Empty(t, w.messages)
}

func TestPublishAfterClose(t *testing.T) {
	w := &memoryWriter{}
	producer := NewProducerWithWriter(w, nil)
	require.NoError(t, producer.Close())
	assert.True(t, w.closed)

	err := producer.Publish(context.Background(), TopicTrainingStarted, "k", []byte("v"))
	assert.Error(t, err)
	assert.Empty(t, w.messages)
}
