// Package config reads hearth's settings from HEARTH_* environment variables.
//
// LoadConfig fails fast: HEARTH_DATABASE_URL and a HEARTH_JWT_SECRET of at
// least 32 bytes are mandatory, and choosing the redis sequence backend
// makes HEARTH_REDIS_URL mandatory too. Durations use time.ParseDuration
// syntax. Both binaries load a .env file first when one exists.
//
// The variables most deployments touch:
//
//	HEARTH_DATABASE_URL                 postgres DSN
//	HEARTH_SEQUENCE_BACKEND             postgres (default) or redis; redis needs AOF
//	                                    persistence, job counters are reconciled at startup
//	HEARTH_CATALOG_FILE                 YAML role overrides, hot reloaded unless HEARTH_CATALOG_WATCH=false
//	HEARTH_GUARD_CACHE_TTL              decision cache lifetime; 0 (default) disables it, keep it short when replicated
//	HEARTH_INVITATION_TTL               default invitation lifetime (168h)
//	HEARTH_INVITATION_SWEEP_SCHEDULE    cron spec of the expiry sweep (@every 5m)
//	HEARTH_INVITATION_PURGE_AFTER       age at which resolved invitations are deleted (2160h)
//	HEARTH_OTEL_ENABLED                 export spans to HEARTH_OTEL_ENDPOINT
package config
