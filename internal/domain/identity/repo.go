package identity

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository stores patients and their identifier types. Lookups
// that find nothing return ErrNotFound.
type PatientRepository interface {
	FindIdentifierType(ctx context.Context, name string) (*IdentifierType, error)
	CreateIdentifierType(ctx context.Context, t *IdentifierType) error

	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// FindByIdentifier returns every patient holding value under the given type.
	FindByIdentifier(ctx context.Context, typeID uuid.UUID, value string) ([]*Patient, error)
	// Create inserts the patient together with its identifiers.
	Create(ctx context.Context, p *Patient) error
}

// ProviderRepository stores providers and their attribute types.
type ProviderRepository interface {
	FindAttributeType(ctx context.Context, name string) (*ProviderAttributeType, error)
	CreateAttributeType(ctx context.Context, t *ProviderAttributeType) error

	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	FindByAttribute(ctx context.Context, typeID uuid.UUID, value string) ([]*Provider, error)
	Create(ctx context.Context, p *Provider) error
}
