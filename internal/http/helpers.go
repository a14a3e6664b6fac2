package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"carteira/internal/core"
)

// HeaderUserID carries the authenticated user. Authentication happens in
// front of this service.
const HeaderUserID = "X-User-ID"

var errMissingUser = errors.New("missing " + HeaderUserID + " header")

// validationError is input rejected by a handler before reaching a service.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func isValidation(err error) bool {
	var ve *validationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range []error{
		core.ErrInvalidDay, core.ErrInvalidMonth, core.ErrInvalidAmount,
		core.ErrEmptyDescription, core.ErrEmptyCategory, core.ErrInvalidType,
		core.ErrEmptyCardName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// userID returns the caller's id or writes a 401.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := sanitizeInput(r.Header.Get(HeaderUserID))
	if id == "" {
		ErrorResponse(http.StatusUnauthorized, errMissingUser.Error()).Write(w)
		return "", false
	}
	return id, true
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
