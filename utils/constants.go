package utils

import (
	"time"
)

// Token time constants
const (
	// AccessTokenTTL is the time-to-live for admin access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for admin refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Pricing constants
const (
	// RuleCacheTTL bounds how stale a cached rule lookup may be. Rule writes
	// also bump the cache namespace, so this is a ceiling, not the norm.
	RuleCacheTTL = 5 * time.Second

	// DefaultPageSize and MaxPageSize bound paginated rule listings.
	DefaultPageSize = 20
	MaxPageSize     = 100
)
