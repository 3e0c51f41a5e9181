package errs

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInternal      = errors.New("internal")

	// ErrMissingTenant aborts any search or cache operation issued without
	// an organization id. Never recovered locally.
	ErrMissingTenant = errors.New("organization id is required")

	// ErrCacheUnavailable means the cache backend could not be reached.
	// Callers must treat it as a cache miss, never as a hard failure.
	ErrCacheUnavailable = errors.New("cache unavailable")

	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrTranscription = errors.New("transcription failed")

	// Provider configuration problems, excluded from circuit breaker
	// failure counting.
	ErrProviderAuth  = errors.New("provider authentication failed")
	ErrProviderQuota = errors.New("provider quota exceeded")

	ErrAIUnavailable = errors.New("ai provider unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsCacheUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}

// IsConfigError reports whether err indicates a provider misconfiguration
// (bad credentials or exhausted quota) rather than transient unavailability.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrProviderAuth) || errors.Is(err, ErrProviderQuota)
}
