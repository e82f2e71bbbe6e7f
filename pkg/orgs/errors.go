package orgs

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/hearth/pkg/httputil"
)

var (
	// ErrInvalidTransition is returned for any transition out of a terminal state
	ErrInvalidTransition = errors.New("invalid invitation transition")

	// ErrExpired is returned when an invitee acts on an invitation past its expiry
	ErrExpired = errors.New("invitation expired")

	// ErrMissingContact is returned when an invitation has neither email nor phone
	ErrMissingContact = errors.New("invitation requires an email or phone")

	// ErrInvalidTTL is returned for non-positive or excessive invitation lifetimes
	ErrInvalidTTL = errors.New("invalid invitation ttl")

	// ErrInvitationNotFound is returned when no invitation matches
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrTenantNotFound is returned when no tenant matches
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrPrincipalNotFound is returned when no principal matches
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrSlugTaken is returned when another tenant already uses the slug
	ErrSlugTaken = errors.New("tenant slug already taken")

	// ErrInvalidName is returned for blank tenant names
	ErrInvalidName = errors.New("tenant name is required")

	// ErrEmailTaken is returned when another principal already uses the email
	ErrEmailTaken = errors.New("email already registered")
)

// ErrorStatuses maps orgs errors to HTTP statuses
var ErrorStatuses = []httputil.ErrorStatus{
	{Err: ErrInvalidTransition, Status: http.StatusConflict},
	{Err: ErrExpired, Status: http.StatusGone},
	{Err: ErrMissingContact, Status: http.StatusBadRequest},
	{Err: ErrInvalidTTL, Status: http.StatusBadRequest},
	{Err: ErrInvalidName, Status: http.StatusBadRequest},
	{Err: ErrInvitationNotFound, Status: http.StatusNotFound},
	{Err: ErrTenantNotFound, Status: http.StatusNotFound},
	{Err: ErrPrincipalNotFound, Status: http.StatusNotFound},
	{Err: ErrSlugTaken, Status: http.StatusConflict},
	{Err: ErrEmailTaken, Status: http.StatusConflict},
}
