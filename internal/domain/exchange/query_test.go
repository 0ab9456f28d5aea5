package exchange

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/identity"
)

type stubHandler struct {
	docs     []*content.Content
	err      error
	from, to *time.Time
}

func (s *stubHandler) SaveContent(context.Context, *identity.Patient, []encounter.ProviderAssignment, *encounter.EncounterType, *content.Content) (*encounter.Encounter, error) {
	return nil, errors.New("not used")
}

func (s *stubHandler) FetchContent(context.Context, uuid.UUID) (*content.Content, error) {
	return nil, errors.New("not used")
}

func (s *stubHandler) QueryEncounters(_ context.Context, _ *identity.Patient, from, to *time.Time) ([]*content.Content, error) {
	s.from, s.to = from, to
	return s.docs, s.err
}

func TestQueryEngine_CollectsHandlerResults(t *testing.T) {
	doc, err := content.New(content.Fields{UniqueID: "a", Representation: content.TXT})
	require.NoError(t, err)
	stub := &stubHandler{docs: []*content.Content{doc, nil}}
	registry := content.NewRegistry()
	registry.Register("text/plain", stub)
	engine := NewQueryEngine(registry, zerolog.Nop())

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	got, err := engine.Query(context.Background(), "Text/Plain; charset=UTF-8", &identity.Patient{ID: uuid.New()}, &from, nil)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].UniqueID())
	assert.Equal(t, &from, stub.from)
	assert.Nil(t, stub.to)
}

func TestQueryEngine_EmptyResultIsNotAnError(t *testing.T) {
	registry := content.NewRegistry()
	registry.Register("text/plain", &stubHandler{})

	got, err := NewQueryEngine(registry, zerolog.Nop()).Query(context.Background(), "text/plain", &identity.Patient{ID: uuid.New()}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestQueryEngine_HandlerFailure(t *testing.T) {
	registry := content.NewRegistry()
	registry.Register("text/plain", &stubHandler{err: errors.New("blob store unreachable")})

	_, err := NewQueryEngine(registry, zerolog.Nop()).Query(context.Background(), "text/plain", &identity.Patient{ID: uuid.New()}, nil, nil)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Internal, re.Kind)
	assert.Equal(t, StageExecuting, re.Stage)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "Error while processing request: blob store unreachable", re.Message)
}

func TestQueryEngine_UnsupportedType(t *testing.T) {
	_, err := NewQueryEngine(content.NewRegistry(), zerolog.Nop()).Query(context.Background(), "image/gif", &identity.Patient{}, nil, nil)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, BadRequest, re.Kind)
	assert.Equal(t, StageDispatching, re.Stage)
	assert.ErrorIs(t, err, content.ErrUnsupported)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDate("2024-03-15T10:15:30")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2024, 3, 15, 10, 15, 30, 0, time.Local)))

	for _, bad := range []string{
		"2024-13-01T00:00:00",
		"2024-03-15",
		"2024-03-15 10:15:30",
		"2024-03-15T10:15:30Z",
		"15/03/2024",
	} {
		_, err := ParseDate(bad)
		var re *RequestError
		require.ErrorAs(t, err, &re, bad)
		assert.Equal(t, BadRequest, re.Kind, bad)
		assert.Equal(t, "Invalid date format. ISO 8601 expected.", re.Message, bad)
	}
}
