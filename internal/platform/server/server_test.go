package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitParams struct {
	PatientID string `query:"patientId" validate:"notblank"`
	Count     int    `json:"count" validate:"gte=0"`
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Validate(&submitParams{PatientID: "123"}))

	tests := []struct {
		name string
		in   submitParams
		want string
	}{
		{"missing", submitParams{}, "Required parameter 'patientId' is not present"},
		{"blank", submitParams{PatientID: "   "}, "Required parameter 'patientId' is not present"},
		{"range", submitParams{PatientID: "1", Count: -1}, "Parameter 'count' failed the gte check"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.in)
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, http.StatusBadRequest, he.Code)
			assert.Equal(t, tt.want, he.Message)
		})
	}
}

func TestJSONSerializer_RoundTrip(t *testing.T) {
	e := New(zerolog.Nop())
	e.POST("/echo", func(c echo.Context) error {
		var p submitParams
		if err := c.Bind(&p); err != nil {
			return err
		}
		if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
			return err
		}
		if err := c.Validate(&p); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]int{"count": p.Count * 2})
	})

	req := httptest.NewRequest(http.MethodPost, "/echo?patientId=p1", strings.NewReader(`{"count":21}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":42}`, rec.Body.String())
}

func TestJSONSerializer_SyntaxError(t *testing.T) {
	e := New(zerolog.Nop())
	e.POST("/echo", func(c echo.Context) error {
		var p submitParams
		return c.Bind(&p)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"count":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorHandler_HTTPErrorIsPlainText(t *testing.T) {
	e := New(zerolog.Nop())
	e.GET("/teapot", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")
}

func TestErrorHandler_UnknownErrorIs500(t *testing.T) {
	e := New(zerolog.Nop())
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("database exploded")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", rec.Body.String())
}

func TestErrorHandler_NotFoundRoute(t *testing.T) {
	e := New(zerolog.Nop())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", rec.Body.String())
}
