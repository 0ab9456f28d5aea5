package docstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/platform/blobstore"
	"github.com/openhie/shr/internal/platform/db"
)

const (
	DefaultHandlerName = "default"
	CDAHandlerName     = "cda"
)

// EncounterStore is the part of the encounter service the handlers use.
type EncounterStore interface {
	Create(ctx context.Context, enc *encounter.Encounter) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, from, to *time.Time) ([]*encounter.Encounter, error)
}

// EncounterHandler stores each document against a freshly created
// encounter. The payload goes to the blob store and a document row links
// the two.
type EncounterHandler struct {
	name       string
	encounters EncounterStore
	docs       Repository
	blobs      blobstore.Store
	tx         db.Transactor
	logger     zerolog.Logger
	now        func() time.Time
}

func NewEncounterHandler(name string, encounters EncounterStore, docs Repository, blobs blobstore.Store, tx db.Transactor, logger zerolog.Logger) *EncounterHandler {
	if tx == nil {
		tx = db.NoopTransactor{}
	}
	return &EncounterHandler{
		name:       name,
		encounters: encounters,
		docs:       docs,
		blobs:      blobs,
		tx:         tx,
		logger:     logger.With().Str("handler", name).Logger(),
		now:        time.Now,
	}
}

func (h *EncounterHandler) Name() string { return h.name }

func (h *EncounterHandler) SaveContent(ctx context.Context, patient *identity.Patient, providers []encounter.ProviderAssignment, encType *encounter.EncounterType, c *content.Content) (*encounter.Encounter, error) {
	if patient == nil || encType == nil || c == nil {
		return nil, fmt.Errorf("%w: patient, encounter type and content are required", content.ErrInvalidContent)
	}

	enc := encounter.NewEncounter(patient, encType, providers, h.now())
	var uploaded string

	err := h.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := h.encounters.Create(ctx, enc); err != nil {
			return fmt.Errorf("create encounter: %w", err)
		}

		blob, err := h.blobs.Put(ctx, blobstore.Object{
			Key:         blobKey(patient.ID, enc.ID),
			ContentType: c.MimeType(),
			PatientID:   patient.ID.String(),
			EncounterID: enc.ID.String(),
		}, bytes.NewReader(c.Payload()))
		if err != nil {
			return fmt.Errorf("store payload: %w", err)
		}
		uploaded = blob.Key

		if err := h.docs.Create(ctx, newDocument(enc.ID, h.name, blob.Key, blob.Checksum, c)); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return nil
	})
	if err != nil {
		if uploaded != "" {
			if derr := h.blobs.Remove(context.WithoutCancel(ctx), uploaded); derr != nil {
				h.logger.Error().Err(derr).Str("blob_key", uploaded).Msg("failed to remove orphaned payload")
			}
		}
		return nil, err
	}

	h.logger.Debug().
		Str("encounter_uuid", enc.ID.String()).
		Str("unique_id", c.UniqueID()).
		Str("representation", string(c.Representation())).
		Int("size", c.PayloadSize()).
		Msg("document stored")
	return enc, nil
}

func (h *EncounterHandler) FetchContent(ctx context.Context, encounterID uuid.UUID) (*content.Content, error) {
	doc, err := h.docs.GetByEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if doc.Handler != h.name {
		return nil, fmt.Errorf("%w: encounter %s is held by the %s handler", ErrDocumentNotFound, encounterID, doc.Handler)
	}
	return h.load(ctx, doc)
}

func (h *EncounterHandler) QueryEncounters(ctx context.Context, patient *identity.Patient, from, to *time.Time) ([]*content.Content, error) {
	encs, err := h.encounters.ListByPatient(ctx, patient.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	if len(encs) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(encs))
	for i, enc := range encs {
		ids[i] = enc.ID
	}
	docs, err := h.docs.ListByEncounters(ctx, h.name, ids)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	result := make([]*content.Content, 0, len(docs))
	for _, enc := range encs {
		doc, ok := docs[enc.ID]
		if !ok {
			continue
		}
		c, err := h.load(ctx, doc)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (h *EncounterHandler) load(ctx context.Context, doc *Document) (*content.Content, error) {
	payload, _, err := blobstore.ReadVerified(ctx, h.blobs, doc.BlobKey, doc.BlobHash)
	if err != nil {
		return nil, fmt.Errorf("load payload for encounter %s: %w", doc.EncounterID, err)
	}
	c, err := doc.Content(payload)
	if err != nil {
		return nil, fmt.Errorf("load encounter %s: %w", doc.EncounterID, err)
	}
	return c, nil
}

func blobKey(patientID, encounterID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", patientID, encounterID)
}
