package sequence

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/hearth/pkg/httputil"
)

var (
	// ErrInvalidPrefix is returned for prefixes outside ^[A-Z][A-Z_]{0,15}$
	ErrInvalidPrefix = errors.New("invalid sequence prefix")

	// ErrSequenceContention is returned when the counter backend failed
	// transiently; the caller may retry
	ErrSequenceContention = errors.New("sequence counter contention")

	// ErrMalformedIdentifier is returned when an identifier is not PREFIX-NNNNNN
	ErrMalformedIdentifier = errors.New("malformed sequence identifier")
)

// ErrorStatuses maps sequence errors to HTTP statuses
var ErrorStatuses = []httputil.ErrorStatus{
	{Err: ErrInvalidPrefix, Status: http.StatusBadRequest},
	{Err: ErrMalformedIdentifier, Status: http.StatusBadRequest},
	{Err: ErrSequenceContention, Status: http.StatusServiceUnavailable, RetryAfter: 1},
}
