package docstore

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	// GetByEncounter returns ErrDocumentNotFound when the encounter has no document.
	GetByEncounter(ctx context.Context, encounterID uuid.UUID) (*Document, error)
	// ListByEncounters returns the documents stored by handler for the given
	// encounters, keyed by encounter id.
	ListByEncounters(ctx context.Context, handler string, encounterIDs []uuid.UUID) (map[uuid.UUID]*Document, error)
}
