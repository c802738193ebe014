package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors understood by RespondError.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps errors to problem responses. Domain packages pass a
// mapping of their own sentinels so this package stays free of domain imports.
func RespondError(w http.ResponseWriter, err error, extra ...Mapping) {
	for _, m := range extra {
		if errors.Is(err, m.Err) {
			Problem(w, m.Status, http.StatusText(m.Status), err.Error())
			return
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Mapping binds a domain sentinel error to an HTTP status.
type Mapping struct {
	Err    error
	Status int
}
