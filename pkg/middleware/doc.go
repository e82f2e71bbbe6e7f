// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// AuthMiddleware validates HS256 bearer tokens and stores the principal named
// by the token subject in the request context:
//
//	verifier := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
//	router.Use(middleware.NewAuthMiddleware(verifier, false).Handler)
//
// Handlers read it back with contextkeys.GetPrincipalID.
//
// RateLimit limits requests per client IP and endpoint. It guards the
// invitation accept and decline endpoints, which are reachable with nothing
// but an invitation token.
package middleware
