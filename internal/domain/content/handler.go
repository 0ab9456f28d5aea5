package content

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
)

var (
	ErrUnsupported    = errors.New("content: unsupported content type")
	ErrInvalidContent = errors.New("content: invalid content")
	// ErrNotFound is wrapped by handlers when no document is stored for a
	// requested encounter.
	ErrNotFound = errors.New("content: document not found")
)

// Handler persists and retrieves documents of the content types it is
// registered for. It only ever receives resolved entities.
type Handler interface {
	// SaveContent stores c against a new encounter for patient and returns it.
	SaveContent(ctx context.Context, patient *identity.Patient, providers []encounter.ProviderAssignment, encType *encounter.EncounterType, c *Content) (*encounter.Encounter, error)
	// FetchContent returns the document stored against an encounter.
	FetchContent(ctx context.Context, encounterID uuid.UUID) (*Content, error)
	// QueryEncounters returns the patient's documents whose encounter falls
	// within [from, to]. Nil bounds are open.
	QueryEncounters(ctx context.Context, patient *identity.Patient, from, to *time.Time) ([]*Content, error)
}
