package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records who touched which patient's documents.
type AuditEntry struct {
	ClientID      string
	Action        string // submit, fetch, query
	PatientID     string
	PatientIDType string
	EncounterID   string
	ContentType   string
	IPAddress     string
	Method        string
	Path          string
	RequestID     string
	StatusCode    int
	Timestamp     time.Time
}

// Audit emits one "document_access" log event per request under prefix,
// after the handler has run so the final status is known.
func Audit(logger zerolog.Logger, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, prefix) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, strings.TrimPrefix(req.URL.Path, prefix))
			var he *echo.HTTPError
			if errors.As(err, &he) && !c.Response().Committed {
				entry.StatusCode = he.Code
			}

			evt := logger.Info()
			if entry.StatusCode >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("client_id", entry.ClientID).
				Str("action", entry.Action).
				Str("patient_id", entry.PatientID).
				Str("patient_id_type", entry.PatientIDType).
				Str("encounter_id", entry.EncounterID).
				Str("content_type", entry.ContentType).
				Str("method", entry.Method).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("document_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, route string) AuditEntry {
	req := c.Request()
	entry := AuditEntry{
		Action:        auditAction(req.Method, route),
		PatientID:     c.QueryParam("patientId"),
		PatientIDType: c.QueryParam("patientIdType"),
		EncounterID:   c.QueryParam("encounterUUID"),
		ContentType:   c.QueryParam("contentType"),
		IPAddress:     c.RealIP(),
		Method:        req.Method,
		Path:          req.URL.Path,
		StatusCode:    c.Response().Status,
		Timestamp:     time.Now().UTC(),
	}
	if entry.ContentType == "" {
		entry.ContentType = req.Header.Get(echo.HeaderContentType)
	}
	entry.ClientID, _ = c.Get("client_id").(string)
	entry.RequestID, _ = c.Get("request_id").(string)
	return entry
}

func auditAction(method, route string) string {
	route = strings.TrimSuffix(route, "/")
	switch {
	case method == http.MethodPost:
		return "submit"
	case route == "/documents":
		return "query"
	default:
		return "fetch"
	}
}
