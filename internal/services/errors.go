package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
)

var (
	ErrGenerationFailure      = errors.New("generation failure")
	ErrGroundingMissing       = errors.New("grounding missing")
	ErrSerializationFailure   = errors.New("serialization failure")
	ErrStreamFailure          = errors.New("stream failure")
	ErrSearchMisconfiguration = errors.New("search misconfiguration")
)

// Error records which operation failed and which failure kind it was.
// errors.Is matches both the kind sentinel and anything wrapped in Err.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// HTTPError maps a service error to the status and code the transport
// responds with. Unknown errors map to 500 internal_error.
func HTTPError(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	if ae := apierr.As(err); ae != nil {
		return ae
	}
	switch {
	case errors.Is(err, ErrGroundingMissing):
		return apierr.New(http.StatusNotFound, "grounding_missing", err)
	case errors.Is(err, ErrSearchMisconfiguration):
		return apierr.New(http.StatusInternalServerError, "search_misconfigured", err)
	case errors.Is(err, ErrGenerationFailure):
		return apierr.New(http.StatusBadGateway, "generation_failed", err)
	case errors.Is(err, ErrSerializationFailure):
		return apierr.New(http.StatusInternalServerError, "serialization_failed", err)
	case errors.Is(err, ErrStreamFailure):
		return apierr.New(http.StatusBadGateway, "stream_failed", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
}
