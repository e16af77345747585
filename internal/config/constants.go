package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background sweeper interval
const SweeperInterval = 1 * time.Minute

// Per-call timeout for external I/O inside the orchestrator. A stuck
// dependency must not hold the process lock for the whole process TTL.
const ExternalCallTimeout = 5 * time.Second

// Token issuance bounds
const (
	MinTokenTTL   = 30 * time.Second
	MaxTokenTTL   = 7 * 24 * time.Hour
	MinUsageLimit = 1
	MaxUsageLimit = 100
)

// Retention of a terminal process record so polling clients can still read
// the outcome before the cache entry goes away.
const CompletedProcessRetention = 5 * time.Minute

// Bounded security event ring kept in redis.
const SecurityEventRingSize = 500
