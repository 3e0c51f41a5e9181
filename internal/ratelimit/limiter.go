package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/proxi-ai/proxi/internal/cache"
	"github.com/proxi-ai/proxi/internal/config"
	"github.com/proxi-ai/proxi/internal/pkg/errs"
	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

const (
	windowSeconds = 60
	// Keys outlive the window by a safety margin so idle keys self-clean.
	keyTTL = 120 * time.Second
)

type Decision struct {
	Allowed      bool `json:"allowed"`
	Remaining    int  `json:"remaining"`
	ResetSeconds int  `json:"reset_seconds"`
}

// Limiter enforces a sliding 60-second window per (org, user), with two
// thresholds over the same window: rpm for steady state and burst for
// instantaneous spikes. Check and Record are deliberately separate so
// callers can short-circuit before charging the window; the resulting
// check-then-record race makes enforcement advisory under concurrency,
// which is accepted.
type Limiter struct {
	store        cache.Store
	defaultRPM   int
	defaultBurst int

	now func() time.Time
}

func NewLimiter(store cache.Store, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store:        store,
		defaultRPM:   cfg.DefaultRPM,
		defaultBurst: cfg.DefaultBurst,
		now:          time.Now,
	}
}

// Check reports whether a request for (orgID, userID) may proceed. rpm and
// burst override the configured defaults when positive. A store outage
// degrades to allow: availability is preferred over strict admission here.
func (l *Limiter) Check(ctx context.Context, orgID, userID string, rpm, burst int) (Decision, error) {
	if orgID == "" {
		return Decision{}, errs.ErrMissingTenant
	}
	if rpm <= 0 {
		rpm = l.defaultRPM
	}
	if burst <= 0 {
		burst = l.defaultBurst
	}
	key := cache.RateLimitKey(orgID, userID)
	now := l.now().Unix()
	windowStart := now - windowSeconds

	if err := l.store.WindowTrim(ctx, key, windowStart); err != nil {
		return l.degrade(ctx, rpm, err)
	}
	count, err := l.store.WindowCount(ctx, key)
	if err != nil {
		return l.degrade(ctx, rpm, err)
	}
	oldest, hasOldest, err := l.store.WindowOldest(ctx, key)
	if err != nil {
		return l.degrade(ctx, rpm, err)
	}

	if count >= int64(burst) || count >= int64(rpm) {
		// Entries older than the window were trimmed above, so a surviving
		// oldest entry younger than the window means the request is denied.
		if hasOldest && now-oldest < windowSeconds {
			reset := windowSeconds - int(now-oldest)
			return Decision{Allowed: false, Remaining: 0, ResetSeconds: reset}, nil
		}
	}

	remaining := rpm - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, ResetSeconds: 0}, nil
}

// Record charges the window. Callers invoke it only after deciding to
// proceed with the request.
func (l *Limiter) Record(ctx context.Context, orgID, userID string) error {
	if orgID == "" {
		return errs.ErrMissingTenant
	}
	key := cache.RateLimitKey(orgID, userID)
	if err := l.store.WindowAdd(ctx, key, l.now().Unix()); err != nil {
		if errs.IsCacheUnavailable(err) {
			logutil.GetLogger(ctx).Warn("rate limit store unavailable, skipping record", zap.Error(err))
			return nil
		}
		return err
	}
	return l.store.Touch(ctx, key, keyTTL)
}

// Stats reports the live window for an org, for the admin surface.
func (l *Limiter) Stats(ctx context.Context, orgID, userID string, rpm int) (map[string]interface{}, error) {
	if orgID == "" {
		return nil, errs.ErrMissingTenant
	}
	if rpm <= 0 {
		rpm = l.defaultRPM
	}
	key := cache.RateLimitKey(orgID, userID)
	now := l.now().Unix()
	if err := l.store.WindowTrim(ctx, key, now-windowSeconds); err != nil {
		return nil, err
	}
	count, err := l.store.WindowCount(ctx, key)
	if err != nil {
		return nil, err
	}
	remaining := rpm - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return map[string]interface{}{
		"org_id":           orgID,
		"current_requests": count,
		"rpm_limit":        rpm,
		"remaining":        remaining,
		"window_start":     now - windowSeconds,
		"window_end":       now,
	}, nil
}

func (l *Limiter) degrade(ctx context.Context, rpm int, err error) (Decision, error) {
	if errs.IsCacheUnavailable(err) {
		logutil.GetLogger(ctx).Warn("rate limit store unavailable, allowing request", zap.Error(err))
		return Decision{Allowed: true, Remaining: rpm, ResetSeconds: 0}, nil
	}
	return Decision{}, err
}
