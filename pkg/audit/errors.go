package audit

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/hearth/pkg/httputil"
)

// ErrInvalidRecord is returned when a record lacks its tenant, entity or field
var ErrInvalidRecord = errors.New("invalid audit record")

// ErrUnsupportedFormat is returned for unknown export formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrorStatuses maps audit errors to HTTP statuses
var ErrorStatuses = []httputil.ErrorStatus{
	{Err: ErrInvalidRecord, Status: http.StatusBadRequest},
	{Err: ErrUnsupportedFormat, Status: http.StatusBadRequest},
}
