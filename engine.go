package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nebryx/authz/apikey"
	"github.com/nebryx/authz/internal/audit"
	"github.com/nebryx/authz/internal/rate"
	"github.com/nebryx/authz/jwt"
	"github.com/nebryx/authz/password"
	"github.com/nebryx/authz/permission"
	"github.com/nebryx/authz/rules"
	"github.com/nebryx/authz/session"
	"github.com/nebryx/authz/totp"
)

// Engine authenticates and authorizes requests and owns the session, TOTP,
// and API key lifecycles. It is safe for concurrent use once built.
type Engine struct {
	config Config
	logger *slog.Logger

	sessions    *session.Store
	rateLimiter *rate.Limiter
	totp        *totp.Service
	totpLimiter *totp.Limiter
	verifier    *apikey.Verifier
	tokens      *jwt.Manager
	passwords   *password.Hasher
	permissions *permission.Table
	rules       *rules.Store

	directory Directory
	keys      KeyStore
	ruleStore RuleStore

	audit   *audit.Dispatcher
	metrics *Metrics

	now func() time.Time
}

// Close flushes pending activities and stops the background writer.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped returns how many activities were discarded because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// InvalidatePermissions drops the memoized rule table. Writes made through the
// engine call it already; call it after editing rules out of band.
func (e *Engine) InvalidatePermissions() {
	e.permissions.Invalidate()
}

// ReloadRules re-reads the pass/block file. On a parse error the previous
// rules stay in force.
func (e *Engine) ReloadRules() error {
	if e.rules == nil {
		return nil
	}
	if err := e.rules.Reload(); err != nil {
		return err
	}
	e.metricInc(MetricRulesReloaded)
	return nil
}

// WatchRules reloads the pass/block file whenever it changes until ctx ends.
// It is a no-op unless Permission.WatchRulesFile is set.
func (e *Engine) WatchRules(ctx context.Context) error {
	if e.rules == nil || !e.config.Permission.WatchRulesFile {
		return nil
	}
	return e.rules.Watch(ctx, e.config.Permission.WatchDebounce)
}

// Ping checks the cache round trip.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// issueToken signs the principal's claims and returns the "Bearer" header
// value.
func (e *Engine) issueToken(p *Principal) (string, error) {
	tok, err := e.tokens.Issue(p.Claims(), 0)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricTokenIssued)
	return "Bearer " + tok, nil
}

func (e *Engine) lookupPrincipal(ctx context.Context, uid string) (*Principal, error) {
	p, err := e.directory.PrincipalByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}
