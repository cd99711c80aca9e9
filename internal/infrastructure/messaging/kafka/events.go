package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
)

// Training lifecycle topics.
const (
	TopicTrainingStarted   = "nlu.training.started"
	TopicTrainingSucceeded = "nlu.training.succeeded"
	TopicTrainingFailed    = "nlu.training.failed"
)

// TrainingEvent is the wire shape of every lifecycle message.
type TrainingEvent struct {
	EventID   string    `json:"event_id"`
	BotID     string    `json:"bot_id"`
	Language  string    `json:"language"`
	Hash      string    `json:"hash"`
	Success   bool      `json:"success,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// TrainingEvents publishes lifecycle events.  Emission is fire-and-forget:
// a broker failure is logged and swallowed, never failing the training
// cycle that produced it.
type TrainingEvents struct {
	producer *Producer
	logger   logging.Logger
}

// NewTrainingEvents wires a publisher over an established producer.
func NewTrainingEvents(producer *Producer, logger logging.Logger) *TrainingEvents {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TrainingEvents{producer: producer, logger: logger.Named("training_events")}
}

// TrainingStarted emits the start-of-cycle event.
func (e *TrainingEvents) TrainingStarted(ctx context.Context, botID, language, hash string) {
	e.emit(ctx, TopicTrainingStarted, TrainingEvent{
		BotID:    botID,
		Language: language,
		Hash:     hash,
	})
}

// TrainingFinished emits the end-of-cycle event on the outcome's topic.
func (e *TrainingEvents) TrainingFinished(ctx context.Context, botID, language, hash string, success bool, elapsed time.Duration) {
	topic := TopicTrainingSucceeded
	if !success {
		topic = TopicTrainingFailed
	}
	e.emit(ctx, topic, TrainingEvent{
		BotID:     botID,
		Language:  language,
		Hash:      hash,
		Success:   success,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

func (e *TrainingEvents) emit(ctx context.Context, topic string, event TrainingEvent) {
	event.EventID = uuid.NewString()
	event.EmittedAt = time.Now().UTC()

	value, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("encode training event", logging.Err(err))
		return
	}
	// Key by bot so a bot's events stay ordered within a partition.
	if err := e.producer.Publish(ctx, topic, event.BotID, value); err != nil {
		e.logger.Warn("publish training event",
			logging.String("topic", topic),
			logging.String("bot", event.BotID),
			logging.Err(err))
	}
}
