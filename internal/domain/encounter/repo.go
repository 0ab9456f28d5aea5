package encounter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Types and roles
	FindTypeByName(ctx context.Context, name string) (*EncounterType, error)
	CreateType(ctx context.Context, t *EncounterType) error
	GetRole(ctx context.Context, id uuid.UUID) (*EncounterRole, error)
	CreateRole(ctx context.Context, r *EncounterRole) error

	// Encounters
	Create(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// ListByPatient returns encounters ordered by datetime. Nil bounds are open.
	ListByPatient(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]*Encounter, error)
}
