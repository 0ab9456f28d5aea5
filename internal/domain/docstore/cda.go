package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/platform/ccda"
)

// CDAHandler checks that text payloads are CDA documents and records
// header fields in the content meta before storing them.
type CDAHandler struct {
	inner *EncounterHandler
}

func NewCDAHandler(inner *EncounterHandler) *CDAHandler {
	return &CDAHandler{inner: inner}
}

func (h *CDAHandler) SaveContent(ctx context.Context, patient *identity.Patient, providers []encounter.ProviderAssignment, encType *encounter.EncounterType, c *content.Content) (*encounter.Encounter, error) {
	if c != nil && c.Representation() == content.TXT {
		header, err := ccda.ParseHeader(c.Payload())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", content.ErrInvalidContent, err)
		}
		c = c.WithMeta(header.Meta())
	}
	return h.inner.SaveContent(ctx, patient, providers, encType, c)
}

func (h *CDAHandler) FetchContent(ctx context.Context, encounterID uuid.UUID) (*content.Content, error) {
	return h.inner.FetchContent(ctx, encounterID)
}

func (h *CDAHandler) QueryEncounters(ctx context.Context, patient *identity.Patient, from, to *time.Time) ([]*content.Content, error) {
	return h.inner.QueryEncounters(ctx, patient, from, to)
}
