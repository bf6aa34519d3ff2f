package audit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRecordPersistsRedactedTrace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ai_interactions").
		WithArgs(
			sqlmock.AnyArg(), // uuid
			int64(7),
			Pseudonymize(42, "test-salt"),
			"posso tomar o remédio com leite?",
			sqlmock.AnyArg(), // question digest
			"Com base nas orientações do Dr. Silva, sim.",
			sqlmock.AnyArg(), // answer digest
			false,
			sqlmock.AnyArg(), // escalation reason (null)
			sqlmock.AnyArg(), // metadata json
			sqlmock.AnyArg(), // created at
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewSink(db, "test-salt", nil)
	sink.Record(context.Background(), Interaction{
		EncounterID: 7,
		PatientID:   42,
		Question:    "posso tomar o remédio com leite?",
		Answer:      "Com base nas orientações do Dr. Silva, sim.",
		ModelMetadata: ModelMetadata{
			Model:   "gemini-2.5-flash",
			Version: "v1",
		},
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkRecordEscalation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ai_interactions").
		WithArgs(
			sqlmock.AnyArg(),
			int64(7),
			Pseudonymize(42, "test-salt"),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			true, // escalation triggered
			"escala_emergencia",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewSink(db, "test-salt", nil)
	sink.Record(context.Background(), Interaction{
		EncounterID:      7,
		PatientID:        42,
		Question:         "estou com dor no peito",
		Answer:           "ATENÇÃO: vou te conectar com a equipe médica agora.",
		Emergency:        true,
		EscalationReason: "escala_emergencia",
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkRecordNeverPanicsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ai_interactions").
		WillReturnError(assert.AnError)

	sink := NewSink(db, "", nil)
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), Interaction{EncounterID: 1, PatientID: 2, Question: "q", Answer: "a"})
	})
}

func TestSinkRecordWithoutDatabase(t *testing.T) {
	sink := NewSink(nil, "salt", nil)
	assert.NotPanics(t, func() {
		sink.Record(context.Background(), Interaction{Question: "q", Answer: "a"})
	})
}

func TestBuildRecordDigestsAndTruncation(t *testing.T) {
	sink := NewSink(nil, "salt", nil)
	rec := sink.build(Interaction{
		EncounterID: 1,
		PatientID:   2,
		Question:    "pergunta",
		Answer:      "resposta",
		Escalation:  true,
	})

	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.QuestionDigest)
	assert.NotEmpty(t, rec.AnswerDigest)
	assert.NotEqual(t, rec.QuestionDigest, rec.AnswerDigest)
	assert.True(t, rec.EscalationTriggered)
	assert.False(t, rec.CreatedAt.IsZero())
}
