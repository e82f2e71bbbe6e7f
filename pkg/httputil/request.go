package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var (
	// ErrEmptyBody is returned when a JSON body is required but absent
	ErrEmptyBody = errors.New("request body is required")
	// ErrBodyTooLarge is returned when the body exceeds MaxBytesMiddleware's limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// ParseJSON decodes exactly one JSON value from the body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		case errors.As(err, &tooLarge):
			return ErrBodyTooLarge
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after the request object")
	}
	return nil
}

// ParseJSONOrError decodes the body and answers 400 (or 413) on failure.
// It reports whether the handler may continue.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, err)
	default:
		WriteBadRequest(w, err.Error())
	}
	return false
}

// ParsePathUUID reads the mux route variable key as a UUID
func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw, ok := mux.Vars(r)[key]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("missing path parameter: %s", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid id: %q", key, raw)
	}
	return id, nil
}

// ParsePathUUIDOrError is ParsePathUUID answering 400 on failure
func ParsePathUUIDOrError(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := ParsePathUUID(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// RequireNonEmpty answers 400 when value is blank
func RequireNonEmpty(w http.ResponseWriter, value, field string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	WriteBadRequest(w, field+" is required")
	return false
}
