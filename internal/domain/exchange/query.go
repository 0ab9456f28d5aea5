package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/identity"
)

// DateLayout is the accepted format of dateStart and dateEnd. Values carry
// no offset and are read in the server's local time zone.
const DateLayout = "2006-01-02T15:04:05"

const invalidDateMessage = "Invalid date format. ISO 8601 expected."

// QueryEngine runs ranged document queries through the handler registered
// for a content type.
type QueryEngine struct {
	registry *content.Registry
	logger   zerolog.Logger
}

func NewQueryEngine(registry *content.Registry, logger zerolog.Logger) *QueryEngine {
	return &QueryEngine{registry: registry, logger: logger}
}

// Query returns the patient's documents of mimeType within [from, to].
// The whole query fails if the handler fails part way through.
func (q *QueryEngine) Query(ctx context.Context, mimeType string, patient *identity.Patient, from, to *time.Time) ([]*content.Content, error) {
	h, err := q.registry.Get(mimeType)
	if err != nil {
		return nil, classify(StageDispatching, err)
	}

	docs, err := h.QueryEncounters(ctx, patient, from, to)
	if err != nil {
		return nil, newRequestError(Internal, StageExecuting, processingErrorPrefix+err.Error(), err)
	}

	result := make([]*content.Content, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			result = append(result, d)
		}
	}

	q.logger.Debug().Str("patient_uuid", patient.ID.String()).Str("content_type", mimeType).
		Int("documents", len(result)).Msg("document query completed")
	return result, nil
}

// ParseDate parses a query bound. A blank value is an open bound.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return nil, newRequestError(BadRequest, StageValidating, invalidDateMessage, fmt.Errorf("parse date %q: %w", s, err))
	}
	return &t, nil
}
