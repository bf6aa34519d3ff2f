package encounter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads encounters and orientations from the relational
// schema.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("encounter: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("encounter: querier required")
	}
	return &PostgresRepository{pool: q}
}

// LastEncounter returns the patient's most recent encounter with its
// orientations in recorded order, or nil when the patient has none.
func (r *PostgresRepository) LastEncounter(ctx context.Context, patientID int64) (*Context, error) {
	const encounterQuery = `
		SELECT id, patient_id, doctor_name, specialty, date
		FROM encounters
		WHERE patient_id = $1
		ORDER BY date DESC
		LIMIT 1
	`

	var enc Encounter
	err := r.pool.QueryRow(ctx, encounterQuery, patientID).Scan(
		&enc.ID, &enc.PatientID, &enc.DoctorName, &enc.Specialty, &enc.Date,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("encounter: query last encounter: %w", err)
	}

	const orientationsQuery = `
		SELECT orientation_type, content
		FROM orientations
		WHERE encounter_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, orientationsQuery, enc.ID)
	if err != nil {
		return nil, fmt.Errorf("encounter: query orientations: %w", err)
	}
	defer rows.Close()

	var orientations []Orientation
	for rows.Next() {
		var o Orientation
		if err := rows.Scan(&o.Type, &o.Content); err != nil {
			return nil, fmt.Errorf("encounter: scan orientation: %w", err)
		}
		orientations = append(orientations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("encounter: iterate orientations: %w", err)
	}

	return &Context{Encounter: enc, Orientations: orientations}, nil
}
