package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// ErrInvalidToken is returned for bearer tokens that fail validation
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the bearer token claims. The subject is the principal id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier. An empty issuer accepts any issuer.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses the token and returns the principal it names
func (v *TokenVerifier) Verify(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	principal, err := uuid.Parse(claims.Subject)
	if err != nil || principal == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a principal id", ErrInvalidToken)
	}
	return principal, nil
}

// Issue signs a token for principal valid for ttl
func (v *TokenVerifier) Issue(principal uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AuthMiddleware resolves the authenticated principal from the bearer token
type AuthMiddleware struct {
	verifier *TokenVerifier
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier *TokenVerifier, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.verifier.Verify(parts[1])
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("bearer token rejected")
			httputil.WriteUnauthorized(w, ErrInvalidToken.Error())
			return
		}

		ctx := contextkeys.WithPrincipalID(r.Context(), principal)
		ctx = observability.WithLogger(ctx, observability.FromContext(ctx).WithField("principal_id", principal.String()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
