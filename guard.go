package authguard

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clank08/tcwatch-authguard/csrf"
	"github.com/clank08/tcwatch-authguard/internal/kv"
	"github.com/clank08/tcwatch-authguard/lockout"
	"github.com/clank08/tcwatch-authguard/ratelimit"
	"github.com/clank08/tcwatch-authguard/session"
	"github.com/clank08/tcwatch-authguard/suspicion"
)

// Guard composes the defense components over one shared Redis client
// and owns the degradation policy: throttles fail open, session state
// fails closed.
type Guard struct {
	config   Config
	store    *kv.Client
	limiter  *ratelimit.Limiter
	lockout  *lockout.Tracker
	scorer   *suspicion.Scorer
	sessions *session.Registry
	csrf     *csrf.Issuer

	metrics    *metricsRegistry
	dispatcher *auditDispatcher
}

// Option configures a Guard beyond its Config.
type Option func(*Guard)

// WithAuditSink routes audit events to the given sink. Without it,
// events are dropped.
func WithAuditSink(sink AuditSink) Option {
	return func(g *Guard) {
		g.dispatcher = newAuditDispatcher(g.config.Audit.Buffer, sink)
	}
}

// New validates cfg and builds a Guard over the given Redis client.
// Rule validation happens here: a rule referenced at runtime but never
// configured is a startup failure, not a recoverable condition.
func New(redisClient redis.UniversalClient, cfg Config, opts ...Option) (*Guard, error) {
	if redisClient == nil {
		return nil, errors.New("authguard: redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := kv.NewClient(redisClient)

	limiter, err := ratelimit.New(store, cfg.Rules)
	if err != nil {
		return nil, err
	}

	var csrfOpts []csrf.Option
	if cfg.CSRF.SweepInterval > 0 {
		csrfOpts = append(csrfOpts, csrf.WithSweepInterval(cfg.CSRF.SweepInterval))
	}

	g := &Guard{
		config:  cfg,
		store:   store,
		limiter: limiter,
		lockout: lockout.New(store, lockout.Config{
			MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
			LockoutDuration:   cfg.Lockout.LockoutDuration,
		}),
		scorer: suspicion.New(store),
		sessions: session.NewRegistry(store, session.Config{
			SessionDuration:    cfg.Session.SessionDuration,
			MaxSessionsPerUser: cfg.Session.MaxSessionsPerUser,
		}),
		csrf:    csrf.NewIssuer(cfg.CSRF.TokenTTL, csrfOpts...),
		metrics: &metricsRegistry{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Close releases the Guard's background resources (CSRF sweeper, audit
// dispatcher). The Redis client is owned by the caller and untouched.
func (g *Guard) Close() {
	g.csrf.Close()
	g.dispatcher.Close()
}

/*
====================================
RATE LIMITING
====================================
*/

// CheckAndConsume consumes one slot from the identity's budget under
// the named rule. On store unavailability the request is allowed (fail
// open), audited, and counted; defense-in-depth never outranks
// availability of the service it defends. ErrRuleNotFound propagates:
// it is a configuration bug.
func (g *Guard) CheckAndConsume(ctx context.Context, ruleName, identity string) (RateLimitResult, error) {
	result, err := g.limiter.CheckAndConsume(ctx, ruleName, identity)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return RateLimitResult{}, err
		}
		g.metrics.inc(MetricRateLimitFailOpen)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditRateLimitFailOpen,
			Rule:      ruleName,
			Error:     err.Error(),
		})
		rule, _ := g.limiter.Rule(ruleName)
		return RateLimitResult{
			Allowed:   true,
			Limit:     rule.MaxRequests,
			Remaining: rule.MaxRequests,
		}, nil
	}

	if !result.Allowed {
		g.metrics.inc(MetricRateLimitDenied)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditRateLimitDenied,
			Rule:      ruleName,
			Metadata:  map[string]string{"identity": identity},
		})
		return result, nil
	}

	g.metrics.inc(MetricRateLimitAllowed)
	return result, nil
}

// RateLimitIdentity builds the default limiter identity from caller IP
// and user id.
func RateLimitIdentity(ip, userID string) string {
	return ratelimit.Identity(ip, userID)
}

/*
====================================
LOCKOUT
====================================
*/

// RecordFailure charges one failed authentication attempt against
// every identifier dimension. Store unavailability is absorbed: a
// degraded defense layer must not fail the login path it protects.
func (g *Guard) RecordFailure(ctx context.Context, ids []LockoutIdentifier) error {
	if err := g.lockout.RecordFailure(ctx, ids); err != nil {
		g.metrics.inc(MetricLockoutFailOpen)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditLockoutFailOpen,
			Error:     err.Error(),
		})
		return nil
	}

	status, err := g.lockout.IsLocked(ctx, ids)
	if err == nil && status.Locked {
		g.metrics.inc(MetricLockoutTriggered)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditLockoutTriggered,
			Metadata:  identifierMetadata(ids),
		})
	}
	return nil
}

// IsLocked checks the identifiers disjunctively, strictly before any
// downstream credential verification. Fails open on store
// unavailability.
func (g *Guard) IsLocked(ctx context.Context, ids []LockoutIdentifier) (LockStatus, error) {
	status, err := g.lockout.IsLocked(ctx, ids)
	if err != nil {
		g.metrics.inc(MetricLockoutFailOpen)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditLockoutFailOpen,
			Error:     err.Error(),
		})
		return LockStatus{AttemptsRemaining: g.config.Lockout.MaxFailedAttempts}, nil
	}

	if status.Locked {
		g.metrics.inc(MetricLockoutDenied)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditLockoutDenied,
			Metadata:  identifierMetadata(ids),
		})
	}
	return status, nil
}

// ClearFailures restores the full failure budget for the identifiers.
// Call exactly once, immediately after the external identity provider
// confirms a successful authentication.
func (g *Guard) ClearFailures(ctx context.Context, ids []LockoutIdentifier) error {
	if err := g.lockout.Clear(ctx, ids); err != nil {
		return err
	}
	g.metrics.inc(MetricLockoutCleared)
	g.dispatcher.emit(AuditEvent{
		EventType: AuditLockoutCleared,
		Metadata:  identifierMetadata(ids),
	})
	return nil
}

func identifierMetadata(ids []LockoutIdentifier) map[string]string {
	if len(ids) == 0 {
		return nil
	}
	meta := make(map[string]string, len(ids))
	for _, id := range ids {
		meta[id.Namespace] = id.Value
	}
	return meta
}

/*
====================================
SUSPICION
====================================
*/

// AssessRequest scores the request for abuse signals. Advisory only:
// the report never blocks a request, and a degraded store degrades the
// report instead of erroring.
func (g *Guard) AssessRequest(ctx context.Context, sample SuspicionSample) SuspicionReport {
	report, err := g.scorer.Assess(ctx, sample)
	if err != nil {
		g.dispatcher.emit(AuditEvent{
			EventType: AuditSuspicionDegraded,
			IP:        sample.IP,
			Error:     err.Error(),
		})
	}
	if report.Suspicious {
		g.metrics.inc(MetricSuspicionFlagged)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditSuspicionFlagged,
			IP:        sample.IP,
			Metadata:  map[string]string{"reasons": strings.Join(report.Reasons, "; ")},
		})
	}
	return report
}

/*
====================================
SESSIONS
====================================
*/

// CreateSession registers a session after a confirmed authentication
// and returns its opaque id. Session writes fail closed: a store error
// propagates and the caller must treat the login as incomplete.
func (g *Guard) CreateSession(ctx context.Context, userID, email, role, refreshToken string, meta SessionClientMeta) (string, error) {
	sessionID, evicted, err := g.sessions.Create(ctx, userID, email, role, refreshToken, meta)
	if err != nil {
		g.metrics.inc(MetricSessionFailClosed)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditSessionFailClosed,
			UserID:    userID,
			Error:     err.Error(),
		})
		return "", err
	}

	g.metrics.inc(MetricSessionCreated)
	g.dispatcher.emit(AuditEvent{
		EventType: AuditSessionCreated,
		UserID:    userID,
		SessionID: sessionID,
		IP:        meta.IPAddress,
	})

	if evicted > 0 {
		g.metrics.add(MetricSessionEvicted, uint64(evicted))
		g.dispatcher.emit(AuditEvent{
			EventType: AuditSessionEvicted,
			UserID:    userID,
			Metadata:  map[string]string{"evicted": strconv.Itoa(evicted)},
		})
	}

	return sessionID, nil
}

// GetSession resolves a session id, renewing the record as a side
// effect of the successful read. Store unavailability fails closed:
// the caller sees ErrSessionNotFound joined with the store error and
// must treat the request as unauthenticated.
func (g *Guard) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	record, err := g.sessions.Get(ctx, sessionID)
	if err == nil {
		return record, nil
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		g.metrics.inc(MetricSessionExpired)
		return nil, err
	case errors.Is(err, ErrSessionNotFound):
		return nil, err
	default:
		g.metrics.inc(MetricSessionFailClosed)
		g.dispatcher.emit(AuditEvent{
			EventType: AuditSessionFailClosed,
			SessionID: sessionID,
			Error:     err.Error(),
		})
		return nil, errors.Join(ErrSessionNotFound, err)
	}
}

// DeleteSession removes the session and its CSRF binding. Idempotent.
func (g *Guard) DeleteSession(ctx context.Context, sessionID string) error {
	if err := g.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	g.csrf.Revoke(sessionID)
	g.metrics.inc(MetricSessionDeleted)
	return nil
}

// DeleteAllSessionsForUser removes every session in the user's index
// and returns how many were removed.
func (g *Guard) DeleteAllSessionsForUser(ctx context.Context, userID string) (int, error) {
	removed, err := g.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	g.metrics.add(MetricSessionDeleted, uint64(removed))
	return removed, nil
}

// ListSessionsForUser returns session metadata sorted most recently
// active first, flagging the caller's own session.
func (g *Guard) ListSessionsForUser(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	return g.sessions.ListForUser(ctx, userID, currentSessionID)
}

/*
====================================
CSRF
====================================
*/

// IssueCSRFToken binds a fresh token to the session, replacing any
// prior one. Issued alongside safe reads for browser-style clients.
func (g *Guard) IssueCSRFToken(sessionID string) (string, error) {
	token, err := g.csrf.Issue(sessionID)
	if err != nil {
		return "", err
	}
	g.metrics.inc(MetricCSRFIssued)
	return token, nil
}

// VerifyCSRFToken checks the presented token against the session's
// bound token in constant time. Returns ErrCSRFInvalid on any failure;
// callers verify before executing every unsafe operation.
func (g *Guard) VerifyCSRFToken(sessionID, token string) error {
	if g.csrf.Verify(sessionID, token) {
		return nil
	}
	g.metrics.inc(MetricCSRFRejected)
	g.dispatcher.emit(AuditEvent{
		EventType: AuditCSRFRejected,
		SessionID: sessionID,
	})
	return ErrCSRFInvalid
}

/*
====================================
OBSERVABILITY
====================================
*/

// MetricsSnapshot returns a point-in-time copy of every Guard counter.
func (g *Guard) MetricsSnapshot() MetricsSnapshot {
	return g.metrics.snapshot()
}

// AuditDropped returns how many audit events were discarded because
// the dispatch buffer was full.
func (g *Guard) AuditDropped() uint64 {
	return g.dispatcher.Dropped()
}

// Ping reports store availability and round-trip latency.
func (g *Guard) Ping(ctx context.Context) (time.Duration, error) {
	return g.store.Ping(ctx)
}
