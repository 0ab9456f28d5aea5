package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhie/shr/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool, tx: db.NewTransactor(pool)}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const identifierTypeCols = `id, name, description, created_at`

const patientCols = `p.id, p.given_name, p.family_name, p.gender, p.created_at`

const patientIdentifierCols = `id, patient_id, identifier_type_id, value, preferred, created_at`

func (r *patientRepoPG) FindIdentifierType(ctx context.Context, name string) (*IdentifierType, error) {
	var t IdentifierType
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+identifierTypeCols+` FROM identifier_type
		WHERE name = $1 ORDER BY created_at, id LIMIT 1`, name).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *patientRepoPG) CreateIdentifierType(ctx context.Context, t *IdentifierType) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO identifier_type (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		t.ID, t.Name, t.Description,
	).Scan(&t.CreatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient p WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if p.Identifiers, err = r.identifiers(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) FindByIdentifier(ctx context.Context, typeID uuid.UUID, value string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT `+patientCols+`
		FROM patient p
		JOIN patient_identifier pi ON pi.patient_id = p.id
		WHERE pi.identifier_type_id = $1 AND pi.value = $2
		ORDER BY p.created_at`, typeID, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range patients {
		if p.Identifiers, err = r.identifiers(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return patients, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patient (id, given_name, family_name, gender)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			p.ID, p.GivenName, p.FamilyName, p.Gender,
		).Scan(&p.CreatedAt); err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}

		for _, ident := range p.Identifiers {
			ident.ID = uuid.New()
			ident.PatientID = p.ID
			if err := r.conn(ctx).QueryRow(ctx, `
				INSERT INTO patient_identifier (id, patient_id, identifier_type_id, value, preferred)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING created_at`,
				ident.ID, ident.PatientID, ident.IdentifierTypeID, ident.Value, ident.Preferred,
			).Scan(&ident.CreatedAt); err != nil {
				return fmt.Errorf("insert patient identifier: %w", err)
			}
		}
		return nil
	})
}

func (r *patientRepoPG) identifiers(ctx context.Context, patientID uuid.UUID) ([]*PatientIdentifier, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientIdentifierCols+`
		FROM patient_identifier WHERE patient_id = $1 ORDER BY preferred DESC, created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idents []*PatientIdentifier
	for rows.Next() {
		var i PatientIdentifier
		if err := rows.Scan(&i.ID, &i.PatientID, &i.IdentifierTypeID, &i.Value, &i.Preferred, &i.CreatedAt); err != nil {
			return nil, err
		}
		idents = append(idents, &i)
	}
	return idents, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.GivenName, &p.FamilyName, &p.Gender, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Provider Repository --

type providerRepoPG struct {
	pool *pgxpool.Pool
	tx   db.Transactor
}

func NewProviderRepo(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool, tx: db.NewTransactor(pool)}
}

func (r *providerRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const attributeTypeCols = `id, name, datatype, description, created_at`

const providerCols = `pr.id, pr.name, pr.created_at`

const providerAttributeCols = `id, provider_id, attribute_type_id, value, created_at`

func (r *providerRepoPG) FindAttributeType(ctx context.Context, name string) (*ProviderAttributeType, error) {
	var t ProviderAttributeType
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+attributeTypeCols+` FROM provider_attribute_type
		WHERE name = $1 ORDER BY created_at, id LIMIT 1`, name).
		Scan(&t.ID, &t.Name, &t.Datatype, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *providerRepoPG) CreateAttributeType(ctx context.Context, t *ProviderAttributeType) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO provider_attribute_type (id, name, datatype, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		t.ID, t.Name, t.Datatype, t.Description,
	).Scan(&t.CreatedAt)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM provider pr WHERE pr.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if p.Attributes, err = r.attributes(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *providerRepoPG) FindByAttribute(ctx context.Context, typeID uuid.UUID, value string) ([]*Provider, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT `+providerCols+`
		FROM provider pr
		JOIN provider_attribute pa ON pa.provider_id = pr.id
		WHERE pa.attribute_type_id = $1 AND pa.value = $2
		ORDER BY pr.created_at`, typeID, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range providers {
		if p.Attributes, err = r.attributes(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO provider (id, name) VALUES ($1, $2)
			RETURNING created_at`,
			p.ID, p.Name,
		).Scan(&p.CreatedAt); err != nil {
			return fmt.Errorf("insert provider: %w", err)
		}

		for _, a := range p.Attributes {
			a.ID = uuid.New()
			a.ProviderID = p.ID
			if err := r.conn(ctx).QueryRow(ctx, `
				INSERT INTO provider_attribute (id, provider_id, attribute_type_id, value)
				VALUES ($1, $2, $3, $4)
				RETURNING created_at`,
				a.ID, a.ProviderID, a.AttributeTypeID, a.Value,
			).Scan(&a.CreatedAt); err != nil {
				return fmt.Errorf("insert provider attribute: %w", err)
			}
		}
		return nil
	})
}

func (r *providerRepoPG) attributes(ctx context.Context, providerID uuid.UUID) ([]*ProviderAttribute, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerAttributeCols+`
		FROM provider_attribute WHERE provider_id = $1 ORDER BY created_at`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attrs []*ProviderAttribute
	for rows.Next() {
		var a ProviderAttribute
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.AttributeTypeID, &a.Value, &a.CreatedAt); err != nil {
			return nil, err
		}
		attrs = append(attrs, &a)
	}
	return attrs, rows.Err()
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
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
