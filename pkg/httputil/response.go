package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorStatus maps a sentinel error to the HTTP status it is reported with.
// Each service package exports its table as ErrorStatuses.
type ErrorStatus struct {
	Err    error
	Status int
	// RetryAfter is sent in seconds when positive
	RetryAfter int
}

// WriteJSON encodes data as the response body with status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage replies with status and {"error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteError replies with status and the text of err
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteInternalError replies 500 without exposing the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// lookupStatus returns the first entry err matches, scanning tables in order
func lookupStatus(err error, tables [][]ErrorStatus) (ErrorStatus, bool) {
	for _, table := range tables {
		for _, entry := range table {
			if errors.Is(err, entry.Err) {
				return entry, true
			}
		}
	}
	return ErrorStatus{}, false
}

// WriteServiceError reports err with the status of its table entry. An
// unmapped err becomes a bare 500 and is returned so the caller can log it.
func WriteServiceError(w http.ResponseWriter, err error, tables ...[]ErrorStatus) error {
	entry, ok := lookupStatus(err, tables)
	if !ok {
		WriteInternalError(w)
		return err
	}
	if entry.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(entry.RetryAfter))
	}
	WriteError(w, entry.Status, err)
	return nil
}
