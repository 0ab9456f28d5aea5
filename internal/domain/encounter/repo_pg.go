package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhie/shr/internal/platform/db"
)

type encounterRepoPG struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &encounterRepoPG{pool: pool, tx: db.NewTransactor(pool)}
}

func (r *encounterRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const typeCols = `id, name, description, created_at`

const encounterCols = `id, patient_id, encounter_type_id, encounter_datetime, created_at`

func (r *encounterRepoPG) FindTypeByName(ctx context.Context, name string) (*EncounterType, error) {
	var t EncounterType
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM encounter_type
		WHERE name = $1 ORDER BY created_at, id LIMIT 1`, name).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *encounterRepoPG) CreateType(ctx context.Context, t *EncounterType) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter_type (id, name, description) VALUES ($1, $2, $3)
		RETURNING created_at`,
		t.ID, t.Name, t.Description,
	).Scan(&t.CreatedAt)
}

func (r *encounterRepoPG) GetRole(ctx context.Context, id uuid.UUID) (*EncounterRole, error) {
	var role EncounterRole
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM encounter_role WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (r *encounterRepoPG) CreateRole(ctx context.Context, role *EncounterRole) error {
	role.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter_role (id, name, description) VALUES ($1, $2, $3)
		RETURNING created_at`,
		role.ID, role.Name, role.Description,
	).Scan(&role.CreatedAt)
}

func (r *encounterRepoPG) Create(ctx context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO encounter (id, patient_id, encounter_type_id, encounter_datetime)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			enc.ID, enc.PatientID, enc.EncounterTypeID, enc.Datetime,
		).Scan(&enc.CreatedAt); err != nil {
			return fmt.Errorf("insert encounter: %w", err)
		}

		for _, p := range enc.Participants {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO encounter_provider (encounter_id, provider_id, role_id)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`,
				enc.ID, p.ProviderID, p.RoleID,
			); err != nil {
				return fmt.Errorf("insert encounter provider: %w", err)
			}
		}
		return nil
	})
}

func (r *encounterRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, err := scanEncounter(r.conn(ctx).QueryRow(ctx, `SELECT `+encounterCols+` FROM encounter WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if enc.Participants, err = r.participants(ctx, enc.ID); err != nil {
		return nil, err
	}
	return enc, nil
}

func (r *encounterRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]*Encounter, error) {
	query := `SELECT ` + encounterCols + ` FROM encounter WHERE patient_id = $1`
	args := []interface{}{patientID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND encounter_datetime >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND encounter_datetime <= $%d", len(args))
	}
	query += " ORDER BY encounter_datetime, created_at"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var encounters []*Encounter
	for rows.Next() {
		enc, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		encounters = append(encounters, enc)
	}
	return encounters, rows.Err()
}

func (r *encounterRepoPG) participants(ctx context.Context, encounterID uuid.UUID) ([]Participant, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT provider_id, role_id FROM encounter_provider WHERE encounter_id = $1`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ps []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ProviderID, &p.RoleID); err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, rows.Err()
}

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	if err := row.Scan(&e.ID, &e.PatientID, &e.EncounterTypeID, &e.Datetime, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
