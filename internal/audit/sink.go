package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telemed/dr-ai-service/pkg/logging"
)

// Interaction is the raw material handed to the sink by the pipeline.
// Question and Answer still contain full text here; the sink redacts them
// before anything is persisted.
type Interaction struct {
	EncounterID int64
	PatientID   int64
	Question    string
	Answer      string
	Escalation  bool
	Emergency   bool
	// EscalationReason carries the answer type when it was not a plain
	// clarification (escala_emergencia, fora_escopo, erro).
	EscalationReason string
	ModelMetadata    ModelMetadata
}

// ModelMetadata records which model produced the answer.
type ModelMetadata struct {
	Model        string `json:"model"`
	FallbackUsed bool   `json:"fallback_used"`
	Specialty    string `json:"specialty,omitempty"`
	Version      string `json:"version"`
}

// Record is the immutable persisted form of one interaction.
type Record struct {
	ID                  string
	EncounterID         int64
	PatientID           int64
	QuestionTruncated   string
	QuestionDigest      string
	AnswerTruncated     string
	AnswerDigest        string
	EscalationTriggered bool
	EscalationReason    string
	ModelMetadata       ModelMetadata
	CreatedAt           time.Time
}

// Sink writes redacted interaction records. Record never returns an error
// to the pipeline: audit failures are logged and swallowed so a storage
// outage cannot break patient-facing answers.
type Sink struct {
	db     *sql.DB
	salt   string
	logger *logging.Logger
}

// NewSink creates an audit sink writing to the ai_interactions table.
func NewSink(db *sql.DB, pseudonymSalt string, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	if pseudonymSalt == "" {
		logger.Warn("PSEUDONYM_SALT not set, patient ids will be logged unhashed")
	}
	return &Sink{db: db, salt: pseudonymSalt, logger: logger}
}

// Record persists a redacted trace of the interaction and emits a
// PII-free structured log line.
func (s *Sink) Record(ctx context.Context, in Interaction) {
	rec := s.build(in)

	if err := s.insert(ctx, rec); err != nil {
		s.logger.Error("failed to persist audit record",
			"encounter_id", rec.EncounterID,
			"error", err,
		)
	}

	s.logger.Info("ai_interaction",
		"pid", Pseudonymize(in.PatientID, s.salt),
		"tipo", in.EscalationReason,
		"escalation", in.Escalation,
		"emergency", in.Emergency,
	)
	s.logger.Debug("ai_interaction_detail",
		"encounter_id", in.EncounterID,
		"q", RedactPII(rec.QuestionTruncated),
		"a", RedactPII(rec.AnswerTruncated),
	)
}

func (s *Sink) build(in Interaction) Record {
	qTrunc, qDigest := SafeStore(in.Question, MaxStoredTextLen)
	aTrunc, aDigest := SafeStore(in.Answer, MaxStoredTextLen)

	return Record{
		ID:                  uuid.NewString(),
		EncounterID:         in.EncounterID,
		PatientID:           in.PatientID,
		QuestionTruncated:   qTrunc,
		QuestionDigest:      qDigest,
		AnswerTruncated:     aTrunc,
		AnswerDigest:        aDigest,
		EscalationTriggered: in.Escalation || in.Emergency,
		EscalationReason:    in.EscalationReason,
		ModelMetadata:       in.ModelMetadata,
		CreatedAt:           time.Now().UTC(),
	}
}

func (s *Sink) insert(ctx context.Context, rec Record) error {
	if s.db == nil {
		return fmt.Errorf("audit: no database configured")
	}

	metadata, err := json.Marshal(rec.ModelMetadata)
	if err != nil {
		metadata = []byte("{}")
	}

	const query = `
		INSERT INTO ai_interactions (
			id, encounter_id, patient_id,
			question_trunc, question_hash, response_trunc, response_hash,
			escalation_triggered, escalation_reason, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	// The stored patient id is the pseudonym, never the raw identifier.
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.EncounterID,
		Pseudonymize(rec.PatientID, s.salt),
		rec.QuestionTruncated,
		rec.QuestionDigest,
		rec.AnswerTruncated,
		rec.AnswerDigest,
		rec.EscalationTriggered,
		nullString(rec.EscalationReason),
		metadata,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert interaction: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
