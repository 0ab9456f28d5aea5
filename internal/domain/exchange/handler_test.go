package exchange

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/docstore"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/domain/settings"
	"github.com/openhie/shr/internal/platform/auth"
	"github.com/openhie/shr/internal/platform/blobstore"
	"github.com/openhie/shr/internal/platform/server"
)

const basePath = "/api/v1/shr"

const minimalCDA = `<ClinicalDocument xmlns="urn:hl7-org:v3">
  <typeId root="2.16.840.1.113883.1.3" extension="POCD_HD000040"/>
  <id root="2.16.840.1.113883.3.1234" extension="doc-7"/>
  <title>Discharge Summary</title>
  <recordTarget><patientRole><id root="1.2.3" extension="ECID-1"/></patientRole></recordTarget>
</ClinicalDocument>`

type testEnv struct {
	e        *echo.Echo
	resolver *identity.Resolver
	patients identity.PatientRepository
}

func newTestEnv(t *testing.T, groupMiddleware ...echo.MiddlewareFunc) *testEnv {
	t.Helper()

	patients := identity.NewPatientRepoMemory()
	resolver := identity.NewResolver(patients, identity.NewProviderRepoMemory(), nil, zerolog.Nop())
	encounters := encounter.NewService(encounter.NewRepoMemory(), settings.NewMemoryStore(), zerolog.Nop())
	docs := docstore.NewRepoMemory()
	blobs := blobstore.NewMemoryStore()

	registry := content.NewRegistry()
	plain := docstore.NewEncounterHandler(docstore.DefaultHandlerName, encounters, docs, blobs, nil, zerolog.Nop())
	for _, mt := range []string{"text/plain", "application/json", "application/pdf"} {
		registry.Register(mt, plain)
	}
	cda := docstore.NewCDAHandler(docstore.NewEncounterHandler(docstore.CDAHandlerName, encounters, docs, blobs, nil, zerolog.Nop()))
	registry.Register("application/xml+cda", cda)

	if len(groupMiddleware) == 0 {
		groupMiddleware = []echo.MiddlewareFunc{auth.DevAuthMiddleware()}
	}
	e := server.New(zerolog.Nop())
	g := e.Group(basePath, groupMiddleware...)
	NewHandler(resolver, encounters, registry, zerolog.Nop()).RegisterRoutes(g)

	return &testEnv{e: e, resolver: resolver, patients: patients}
}

func (env *testEnv) do(method, path string, q url.Values, contentType, body string) *httptest.ResponseRecorder {
	target := basePath + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func submitQuery(patientID string) url.Values {
	return url.Values{
		"patientId":              {patientID},
		"patientIdType":          {"ECID"},
		"providerId":             {"prov-1"},
		"providerIdType":         {"EPID"},
		"encounterType":          {"Clinical Document"},
		"typeCodeCode":           {"34133-9"},
		"typeCodeCodingScheme":   {"LOINC"},
		"typeCodeCodeName":       {"Summarization of Episode Note"},
		"formatCodeCode":         {"urn:ihe:pcc:xphr:2007"},
		"formatCodeCodingScheme": {"IHE PCC"},
	}
}

func (env *testEnv) post(t *testing.T, q url.Values, contentType, body string) uuid.UUID {
	t.Helper()
	rec := env.do(http.MethodPost, "/document", q, contentType, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, err := uuid.Parse(rec.Body.String())
	require.NoError(t, err)
	return id
}

func (env *testEnv) fetch(t *testing.T, contentType string, encounterID uuid.UUID) *content.Content {
	t.Helper()
	rec := env.do(http.MethodGet, "/document", url.Values{
		"contentType":   {contentType},
		"encounterUUID": {encounterID.String()},
	}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got content.Content
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return &got
}

func TestPostDocument_TextRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	q := submitQuery("ECID-1")
	q.Set("uniqueID", "doc-1")

	rec := env.do(http.MethodPost, "/document", q, "text/plain; charset=ISO-8859-1", "hello world")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")
	encounterID, err := uuid.Parse(rec.Body.String())
	require.NoError(t, err)

	got := env.fetch(t, "text/plain", encounterID)
	assert.Equal(t, "doc-1", got.UniqueID())
	assert.Equal(t, "hello world", string(got.Payload()))
	assert.Equal(t, content.TXT, got.Representation())
	assert.Equal(t, "ISO-8859-1", got.Encoding())
	assert.Equal(t, "text/plain; charset=ISO-8859-1", got.MimeType())
	assert.Equal(t, content.CodedValue{Code: "34133-9", CodingScheme: "LOINC", DisplayName: "Summarization of Episode Note"}, got.TypeCode())
	assert.Equal(t, content.CodedValue{Code: "urn:ihe:pcc:xphr:2007", CodingScheme: "IHE PCC"}, got.FormatCode())
	assert.NotNil(t, got.CreatedAt())
}

func TestPostDocument_Representations(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		isURL       string
		body        string
		wantRep     content.Representation
		wantPayload string
	}{
		{"json is text", "application/json", "", `{"a":1}`, content.TXT, `{"a":1}`},
		{"pdf is base64", "application/pdf", "", "%PDF-1.4", content.B64, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))},
		{"pdf url", "application/pdf", "TRUE", "http://example.org/doc.pdf", content.BINARY, "http://example.org/doc.pdf"},
		{"text ignores url flag", "text/plain", "true", "http://example.org/a.txt", content.TXT, "http://example.org/a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			q := submitQuery("ECID-1")
			if tt.isURL != "" {
				q.Set("isURL", tt.isURL)
			}
			id := env.post(t, q, tt.contentType, tt.body)

			got := env.fetch(t, tt.contentType, id)
			assert.Equal(t, tt.wantRep, got.Representation())
			assert.Equal(t, tt.wantPayload, string(got.Payload()))
			assert.NotEmpty(t, got.UniqueID())
		})
	}
}

func TestPostDocument_ContentTypeRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/document", submitQuery("ECID-1"), "", "hello")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Content-Type expected", rec.Body.String())
	assert.Equal(t, echo.MIMETextPlainCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
}

func TestPostDocument_RequiredParameters(t *testing.T) {
	for _, param := range []string{"patientId", "providerIdType", "encounterType", "formatCodeCodingScheme"} {
		t.Run(param, func(t *testing.T) {
			env := newTestEnv(t)

			q := submitQuery("ECID-1")
			q.Del(param)
			rec := env.do(http.MethodPost, "/document", q, "text/plain", "x")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Required parameter '"+param+"' is not present", rec.Body.String())

			q.Set(param, "   ")
			rec = env.do(http.MethodPost, "/document", q, "text/plain", "x")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPostDocument_UnsupportedContentType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/document", submitQuery("ECID-1"), "image/gif", "GIF89a")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "image/gif")
}

func TestPostDocument_InvalidCDA(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/document", submitQuery("ECID-1"), "application/xml+cda", "<note>not cda</note>")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := env.post(t, submitQuery("ECID-1"), "application/xml+cda", minimalCDA)
	got := env.fetch(t, "application/xml+cda", id)
	assert.Equal(t, "Discharge Summary", got.Meta()["cda.title"])
}

func TestPostDocument_DuplicatePatientIdentifier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	idType := &identity.IdentifierType{Name: "ECID"}
	require.NoError(t, env.patients.CreateIdentifierType(ctx, idType))
	for i := 0; i < 2; i++ {
		require.NoError(t, env.patients.Create(ctx, &identity.Patient{
			GivenName:   "Jane",
			FamilyName:  "Doe",
			Gender:      "F",
			Identifiers: []*identity.PatientIdentifier{{IdentifierTypeID: idType.ID, Value: "dup"}},
		}))
	}

	rec := env.do(http.MethodPost, "/document", submitQuery("dup"), "text/plain", "x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Multiple patients found for identifier ECID-dup", rec.Body.String())

	rec = env.do(http.MethodGet, "/documents", url.Values{
		"contentType":   {"text/plain"},
		"patientId":     {"dup"},
		"patientIdType": {"ECID"},
	}, "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Multiple patients found for identifier ECID-dup", rec.Body.String())
}

func TestPostDocument_RequiresWriteScope(t *testing.T) {
	readOnly := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.ClientScopesKey, []string{"shr/document.read"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	env := newTestEnv(t, readOnly)

	rec := env.do(http.MethodPost, "/document", submitQuery("ECID-1"), "text/plain", "x")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/documents", url.Values{
		"contentType":   {"text/plain"},
		"patientId":     {"ECID-1"},
		"patientIdType": {"ECID"},
	}, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDocument_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		query      url.Values
		wantStatus int
		wantBody   string
	}{
		{
			name:       "neither key",
			query:      url.Values{"contentType": {"text/plain"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Either encounterUUID or uniqueID must be specified",
		},
		{
			name:       "both keys",
			query:      url.Values{"contentType": {"text/plain"}, "encounterUUID": {uuid.NewString()}, "uniqueID": {"doc-1"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "encounterUUID and uniqueID cannot both be specified",
		},
		{
			name:       "unique id lookup",
			query:      url.Values{"contentType": {"text/plain"}, "uniqueID": {"doc-1"}},
			wantStatus: http.StatusNotImplemented,
			wantBody:   "Query by uniqueID not implemented yet",
		},
		{
			name:       "malformed encounter uuid",
			query:      url.Values{"contentType": {"text/plain"}, "encounterUUID": {"not-a-uuid"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Invalid encounterUUID",
		},
		{
			name:       "missing content type",
			query:      url.Values{"encounterUUID": {uuid.NewString()}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Required parameter 'contentType' is not present",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/document", tt.query, "", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	env := newTestEnv(t)
	missing := uuid.New()

	rec := env.do(http.MethodGet, "/document", url.Values{
		"contentType":   {"text/plain"},
		"encounterUUID": {missing.String()},
	}, "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document for encounter "+missing.String()+" not found", rec.Body.String())
}

func TestGetDocument_UnsupportedContentType(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/document", url.Values{
		"contentType":   {"image/gif"},
		"encounterUUID": {uuid.NewString()},
	}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocuments_UnknownPatient(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/documents", url.Values{
		"contentType":   {"text/plain"},
		"patientId":     {"nobody"},
		"patientIdType": {"ECID"},
	}, "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Patient ECID-nobody not found", rec.Body.String())
}

func TestGetDocuments_EmptyResultHasNoBody(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.resolver.ResolveOrCreatePatient(context.Background(), "ECID-1", "ECID")
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/documents", url.Values{
		"contentType":   {"text/plain"},
		"patientId":     {"ECID-1"},
		"patientIdType": {"ECID"},
	}, "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestGetDocuments_InvalidDate(t *testing.T) {
	env := newTestEnv(t)

	for _, param := range []string{"dateStart", "dateEnd"} {
		rec := env.do(http.MethodGet, "/documents", url.Values{
			"contentType":   {"text/plain"},
			"patientId":     {"ECID-1"},
			"patientIdType": {"ECID"},
			param:           {"2024-13-01T00:00:00"},
		}, "", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code, param)
		assert.Equal(t, "Invalid date format. ISO 8601 expected.", rec.Body.String(), param)
	}
}

func TestGetDocuments_ListsPatientDocuments(t *testing.T) {
	env := newTestEnv(t)

	first := env.post(t, submitQuery("ECID-1"), "text/plain", "first")
	second := env.post(t, submitQuery("ECID-1"), "text/plain", "second")
	env.post(t, submitQuery("ECID-2"), "text/plain", "other patient")
	env.post(t, submitQuery("ECID-1"), "application/xml+cda", minimalCDA)
	require.NotEqual(t, first, second)

	list := func(extra url.Values) *httptest.ResponseRecorder {
		q := url.Values{
			"contentType":   {"text/plain"},
			"patientId":     {"ECID-1"},
			"patientIdType": {"ECID"},
		}
		for k, v := range extra {
			q[k] = v
		}
		return env.do(http.MethodGet, "/documents", q, "", "")
	}

	rec := list(nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []*content.Content
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 2)
	payloads := []string{string(docs[0].Payload()), string(docs[1].Payload())}
	assert.ElementsMatch(t, []string{"first", "second"}, payloads)

	now := time.Now()
	rec = list(url.Values{
		"dateStart": {now.Add(-time.Hour).Format(DateLayout)},
		"dateEnd":   {now.Add(time.Hour).Format(DateLayout)},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	assert.Len(t, docs, 2)

	rec = list(url.Values{"dateStart": {now.Add(time.Hour).Format(DateLayout)}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPostDocument_ReusesResolvedPatient(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, submitQuery("ECID-9"), "text/plain", "one")
	env.post(t, submitQuery("ECID-9"), "text/plain", "two")

	p, err := env.resolver.ResolvePatient(context.Background(), "ECID-9", "ECID")
	require.NoError(t, err)
	assert.Equal(t, identity.PlaceholderGivenName, p.GivenName)
}
