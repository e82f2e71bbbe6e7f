package crm

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/hearth/pkg/httputil"
)

var (
	// ErrContactNotFound is returned when no contact of the tenant matches
	ErrContactNotFound = errors.New("contact not found")

	// ErrJobNotFound is returned when no job of the tenant matches
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput is returned for missing or malformed fields
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidAssignee is returned when the assignee is not an active member of the tenant
	ErrInvalidAssignee = errors.New("assignee is not an active member")

	// ErrDuplicateNumber is returned when a job number is already taken
	ErrDuplicateNumber = errors.New("job number already exists")
)

// ErrorStatuses maps crm errors to HTTP statuses
var ErrorStatuses = []httputil.ErrorStatus{
	{Err: ErrContactNotFound, Status: http.StatusNotFound},
	{Err: ErrJobNotFound, Status: http.StatusNotFound},
	{Err: ErrInvalidInput, Status: http.StatusBadRequest},
	{Err: ErrInvalidAssignee, Status: http.StatusBadRequest},
	{Err: ErrDuplicateNumber, Status: http.StatusConflict},
}
