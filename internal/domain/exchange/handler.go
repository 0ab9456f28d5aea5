package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/platform/auth"
)

const (
	scopeResource = "shr/document"

	msgContentTypeExpected = "Content-Type expected"
	msgKeyRequired         = "Either encounterUUID or uniqueID must be specified"
	msgKeysExclusive       = "encounterUUID and uniqueID cannot both be specified"
	msgUniqueIDLookup      = "Query by uniqueID not implemented yet"
	msgInvalidEncounterID  = "Invalid encounterUUID"
)

// EncounterService is the part of encounter.Service the exchange needs.
type EncounterService interface {
	GetOrCreateType(ctx context.Context, name string) (identity.Resolved[*encounter.EncounterType], error)
	DefaultRole(ctx context.Context) (*encounter.EncounterRole, error)
}

// Handler serves the document exchange endpoints.
type Handler struct {
	resolver   *identity.Resolver
	encounters EncounterService
	registry   *content.Registry
	query      *QueryEngine
	logger     zerolog.Logger
}

func NewHandler(resolver *identity.Resolver, encounters EncounterService, registry *content.Registry, logger zerolog.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		encounters: encounters,
		registry:   registry,
		query:      NewQueryEngine(registry, logger),
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	readGroup := g.Group("", auth.RequireScope(scopeResource, "read"))
	readGroup.GET("/document", h.GetDocument)
	readGroup.GET("/documents", h.GetDocuments)

	writeGroup := g.Group("", auth.RequireScope(scopeResource, "write"))
	writeGroup.POST("/document", h.PostDocument)
}

type submitParams struct {
	PatientID              string `query:"patientId" validate:"notblank"`
	PatientIDType          string `query:"patientIdType" validate:"notblank"`
	ProviderID             string `query:"providerId" validate:"notblank"`
	ProviderIDType         string `query:"providerIdType" validate:"notblank"`
	EncounterType          string `query:"encounterType" validate:"notblank"`
	TypeCodeCode           string `query:"typeCodeCode" validate:"notblank"`
	TypeCodeCodingScheme   string `query:"typeCodeCodingScheme" validate:"notblank"`
	TypeCodeCodeName       string `query:"typeCodeCodeName"`
	FormatCodeCode         string `query:"formatCodeCode" validate:"notblank"`
	FormatCodeCodingScheme string `query:"formatCodeCodingScheme" validate:"notblank"`
	FormatCodeCodeName     string `query:"formatCodeCodeName"`
	IsURL                  string `query:"isURL"`
	UniqueID               string `query:"uniqueID"`
}

type fetchParams struct {
	ContentType   string `query:"contentType" validate:"notblank"`
	EncounterUUID string `query:"encounterUUID"`
	UniqueID      string `query:"uniqueID"`
}

type queryParams struct {
	ContentType   string `query:"contentType" validate:"notblank"`
	PatientID     string `query:"patientId" validate:"notblank"`
	PatientIDType string `query:"patientIdType" validate:"notblank"`
	DateStart     string `query:"dateStart"`
	DateEnd       string `query:"dateEnd"`
}

// PostDocument stores the request body as a new document for the patient
// and answers 201 with the encounter UUID.
func (h *Handler) PostDocument(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	log := h.logger.With().Str("content_type", contentType).Logger()

	var p submitParams
	if err := bindQuery(c, &p); err != nil {
		return h.fail(c, log, StageValidating, err)
	}
	log = log.With().Str("patient_id_type", p.PatientIDType).Str("patient_id", p.PatientID).
		Str("provider_id_type", p.ProviderIDType).Str("provider_id", p.ProviderID).Logger()
	log.Debug().Msg("document submission")

	if strings.TrimSpace(contentType) == "" {
		return h.fail(c, log, StageValidating, badRequest(StageValidating, msgContentTypeExpected))
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.fail(c, log, StageValidating, err)
	}

	ctx := c.Request().Context()

	patient, err := h.resolver.ResolveOrCreatePatient(ctx, p.PatientID, p.PatientIDType)
	if err != nil {
		return h.fail(c, log, StageResolving, err)
	}
	provider, err := h.resolver.ResolveOrCreateProvider(ctx, p.ProviderID, p.ProviderIDType)
	if err != nil {
		return h.fail(c, log, StageResolving, err)
	}
	role, err := h.encounters.DefaultRole(ctx)
	if err != nil {
		return h.fail(c, log, StageResolving, err)
	}
	encType, err := h.encounters.GetOrCreateType(ctx, p.EncounterType)
	if err != nil {
		return h.fail(c, log, StageResolving, err)
	}
	log.Debug().
		Stringer("patient", patient.Outcome).
		Stringer("provider", provider.Outcome).
		Stringer("encounter_type", encType.Outcome).
		Msg("entities resolved")

	handler, err := h.registry.Get(contentType)
	if err != nil {
		return h.fail(c, log, StageDispatching, err)
	}

	doc := content.Build(content.BuildRequest{
		UniqueID: p.UniqueID,
		MimeType: contentType,
		Body:     body,
		IsURL:    strings.EqualFold(strings.TrimSpace(p.IsURL), "true"),
		TypeCode: content.CodedValue{
			Code:         p.TypeCodeCode,
			CodingScheme: p.TypeCodeCodingScheme,
			DisplayName:  p.TypeCodeCodeName,
		},
		FormatCode: content.CodedValue{
			Code:         p.FormatCodeCode,
			CodingScheme: p.FormatCodeCodingScheme,
			DisplayName:  p.FormatCodeCodeName,
		},
		Charset: content.CharsetOf(contentType),
	})

	assignments := []encounter.ProviderAssignment{{Provider: provider.Entity, Role: role}}
	enc, err := handler.SaveContent(ctx, patient.Entity, assignments, encType.Entity, doc)
	if err != nil {
		return h.fail(c, log, StageExecuting, err)
	}

	log.Info().Str("encounter_uuid", enc.ID.String()).Str("unique_id", doc.UniqueID()).
		Str("representation", string(doc.Representation())).Msg("document stored")
	return c.String(http.StatusCreated, enc.ID.String())
}

// GetDocument returns the document stored against encounterUUID.
func (h *Handler) GetDocument(c echo.Context) error {
	var p fetchParams
	if err := bindQuery(c, &p); err != nil {
		return h.fail(c, h.logger, StageValidating, err)
	}
	log := h.logger.With().Str("content_type", p.ContentType).
		Str("encounter_uuid", p.EncounterUUID).Str("unique_id", p.UniqueID).Logger()

	byEncounter := strings.TrimSpace(p.EncounterUUID) != ""
	byUniqueID := strings.TrimSpace(p.UniqueID) != ""
	switch {
	case !byEncounter && !byUniqueID:
		return h.fail(c, log, StageValidating, badRequest(StageValidating, msgKeyRequired))
	case byEncounter && byUniqueID:
		return h.fail(c, log, StageValidating, badRequest(StageValidating, msgKeysExclusive))
	case byUniqueID:
		return h.fail(c, log, StageValidating, newRequestError(NotImplemented, StageValidating, msgUniqueIDLookup, nil))
	}

	encounterID, err := uuid.Parse(strings.TrimSpace(p.EncounterUUID))
	if err != nil {
		return h.fail(c, log, StageValidating, newRequestError(BadRequest, StageValidating, msgInvalidEncounterID, err))
	}

	handler, err := h.registry.Get(p.ContentType)
	if err != nil {
		return h.fail(c, log, StageDispatching, err)
	}

	doc, err := handler.FetchContent(c.Request().Context(), encounterID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			msg := fmt.Sprintf("Document for encounter %s not found", encounterID)
			err = newRequestError(NotFound, StageExecuting, msg, err)
		}
		return h.fail(c, log, StageExecuting, err)
	}
	return h.respond(c, log, doc)
}

// GetDocuments lists the patient's documents, optionally bounded by
// dateStart and dateEnd. An empty result is 200 with no body.
func (h *Handler) GetDocuments(c echo.Context) error {
	var p queryParams
	if err := bindQuery(c, &p); err != nil {
		return h.fail(c, h.logger, StageValidating, err)
	}
	log := h.logger.With().Str("content_type", p.ContentType).
		Str("patient_id_type", p.PatientIDType).Str("patient_id", p.PatientID).Logger()
	log.Debug().Msg("document query")

	from, err := ParseDate(p.DateStart)
	if err != nil {
		return h.fail(c, log, StageValidating, err)
	}
	to, err := ParseDate(p.DateEnd)
	if err != nil {
		return h.fail(c, log, StageValidating, err)
	}

	ctx := c.Request().Context()

	patient, err := h.resolver.ResolvePatient(ctx, p.PatientID, p.PatientIDType)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			msg := fmt.Sprintf("Patient %s-%s not found", p.PatientIDType, p.PatientID)
			err = newRequestError(NotFound, StageResolving, msg, err)
		}
		return h.fail(c, log, StageResolving, err)
	}

	docs, err := h.query.Query(ctx, p.ContentType, patient, from, to)
	if err != nil {
		return h.fail(c, log, StageExecuting, err)
	}
	if len(docs) == 0 {
		return c.NoContent(http.StatusOK)
	}
	return h.respond(c, log, docs)
}

// bindQuery binds and validates query parameters only. POST bodies carry
// the document and are never bound.
func bindQuery(c echo.Context, i interface{}) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, i); err != nil {
		return err
	}
	return c.Validate(i)
}

// respond writes v as JSON. An encoding failure before anything was sent
// is still reported as a request failure.
func (h *Handler) respond(c echo.Context, log zerolog.Logger, v interface{}) error {
	err := c.JSON(http.StatusOK, v)
	if err != nil && !c.Response().Committed {
		return h.fail(c, log, StageResponding, err)
	}
	return err
}

// fail converts err into the request's single failure response and logs it.
func (h *Handler) fail(c echo.Context, log zerolog.Logger, stage Stage, err error) error {
	re := classify(stage, err)

	evt := log.Warn()
	if re.Status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(re.Err).
		Str("stage", string(re.Stage)).
		Str("kind", re.Kind.String()).
		Int("status", re.Status).
		Msg(re.Message)

	contentType := re.ContentType
	if contentType == "" {
		contentType = defaultErrorContentType
	}
	return c.Blob(re.Status, contentType, []byte(re.Message))
}
