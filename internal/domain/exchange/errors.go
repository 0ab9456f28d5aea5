package exchange

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/identity"
)

// Kind classifies a failed request.
type Kind int

const (
	BadRequest Kind = iota
	NotFound
	NotImplemented
	Conflict
	Internal
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case NotImplemented:
		return "not_implemented"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status returns the HTTP status a kind is reported with. Conflicts are
// data-integrity faults and surface as server errors.
func (k Kind) Status() int {
	switch k {
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case NotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Stage is the step of request processing a failure happened in.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageResolving   Stage = "resolving"
	StageDispatching Stage = "dispatching"
	StageExecuting   Stage = "executing"
	StageResponding  Stage = "responding"
)

const (
	defaultErrorContentType = echo.MIMETextPlainCharsetUTF8
	processingErrorPrefix   = "Error while processing request: "
)

// RequestError is the single structured failure a request ends with.
type RequestError struct {
	Kind        Kind
	Stage       Stage
	Status      int
	ContentType string
	Message     string
	Err         error
}

func newRequestError(kind Kind, stage Stage, msg string, err error) *RequestError {
	return &RequestError{
		Kind:        kind,
		Stage:       stage,
		Status:      kind.Status(),
		ContentType: defaultErrorContentType,
		Message:     msg,
		Err:         err,
	}
}

func badRequest(stage Stage, format string, args ...any) *RequestError {
	return newRequestError(BadRequest, stage, fmt.Sprintf(format, args...), nil)
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// classify converts an error raised during stage into a RequestError.
// RequestErrors and echo HTTP errors keep their own status.
func classify(stage Stage, err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := Internal
		switch he.Code {
		case http.StatusBadRequest:
			kind = BadRequest
		case http.StatusNotFound:
			kind = NotFound
		case http.StatusNotImplemented:
			kind = NotImplemented
		}
		re = newRequestError(kind, stage, fmt.Sprint(he.Message), err)
		re.Status = he.Code
		return re
	}

	var conflict *identity.ConflictError
	switch {
	case errors.Is(err, content.ErrUnsupported):
		return newRequestError(BadRequest, stage, err.Error(), err)
	case errors.Is(err, content.ErrInvalidContent):
		return newRequestError(BadRequest, stage, err.Error(), err)
	case errors.As(err, &conflict):
		return newRequestError(Conflict, stage, conflict.Error(), err)
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, content.ErrNotFound):
		return newRequestError(NotFound, stage, err.Error(), err)
	default:
		return newRequestError(Internal, stage, processingErrorPrefix+err.Error(), err)
	}
}
