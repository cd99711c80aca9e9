package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
	"github.com/converso-ai/nlu-engine/pkg/types/nlu"
)

// DBTX is the slice of pgxpool.Pool the store uses.  Tests substitute fakes.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TrainingRecord is one stored definition set's provenance row.
type TrainingRecord struct {
	BotID     string    `json:"bot_id"`
	Language  string    `json:"language"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrainingStore persists one TrainInput per (bot, language).  Saving replaces
// the previous definition set; history is the model store's job.
type TrainingStore struct {
	db     DBTX
	logger logging.Logger
}

// NewTrainingStore wires a store over a pool or transaction.
func NewTrainingStore(db DBTX, logger logging.Logger) *TrainingStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TrainingStore{db: db, logger: logger.Named("training_store")}
}

// Save upserts the definition set for (input.BotID, input.Language).
func (s *TrainingStore) Save(ctx context.Context, input nlu.TrainInput) error {
	if input.BotID == "" || input.Language == "" {
		return errors.New(errors.ErrCodeValidation, "training input is missing bot or language")
	}
	definition, err := json.Marshal(input)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "encode training input")
	}

	const q = `
		INSERT INTO training_inputs (bot_id, language, hash, definition, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (bot_id, language)
		DO UPDATE SET hash = EXCLUDED.hash, definition = EXCLUDED.definition, updated_at = now()`
	if _, err := s.db.Exec(ctx, q, input.BotID, input.Language, model.InputHash(input), definition); err != nil {
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "save training input for bot %q", input.BotID)
	}
	return nil
}

// Load fetches the stored definition set for (bot, language).
func (s *TrainingStore) Load(ctx context.Context, botID, language string) (nlu.TrainInput, error) {
	const q = `SELECT definition FROM training_inputs WHERE bot_id = $1 AND language = $2`

	var definition []byte
	err := s.db.QueryRow(ctx, q, botID, language).Scan(&definition)
	if err == pgx.ErrNoRows {
		return nlu.TrainInput{}, errors.Newf(errors.ErrCodeNotFound, "no training input for bot %q language %q", botID, language)
	}
	if err != nil {
		return nlu.TrainInput{}, errors.Wrapf(err, errors.ErrCodeDatabaseError, "load training input for bot %q", botID)
	}

	var input nlu.TrainInput
	if err := json.Unmarshal(definition, &input); err != nil {
		return nlu.TrainInput{}, errors.Wrap(err, errors.ErrCodeSerialization, "decode training input")
	}
	return input, nil
}

// List returns provenance rows for every stored definition set of the bot.
func (s *TrainingStore) List(ctx context.Context, botID string) ([]TrainingRecord, error) {
	const q = `
		SELECT bot_id, language, hash, updated_at
		FROM training_inputs
		WHERE bot_id = $1
		ORDER BY language`

	rows, err := s.db.Query(ctx, q, botID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeDatabaseError, "list training inputs for bot %q", botID)
	}
	defer rows.Close()

	var records []TrainingRecord
	for rows.Next() {
		var rec TrainingRecord
		if err := rows.Scan(&rec.BotID, &rec.Language, &rec.Hash, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan training input row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate training input rows")
	}
	return records, nil
}

// Delete removes the stored definition set.  Missing rows are not an error.
func (s *TrainingStore) Delete(ctx context.Context, botID, language string) error {
	const q = `DELETE FROM training_inputs WHERE bot_id = $1 AND language = $2`
	if _, err := s.db.Exec(ctx, q, botID, language); err != nil {
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "delete training input for bot %q", botID)
	}
	return nil
}
