package authguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/clank08/tcwatch-authguard/ratelimit"
)

// Config holds every recognized tuning option. Configs are built once,
// validated by [New], and treated as immutable afterwards.
type Config struct {
	Lockout LockoutConfig
	Session SessionConfig
	CSRF    CSRFConfig
	Rules   []ratelimit.Rule
	Audit   AuditConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the brute-force lockout tracker.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the session registry.
type SessionConfig struct {
	SessionDuration    time.Duration
	MaxSessionsPerUser int
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig tunes the CSRF token issuer. A zero SweepInterval
// disables the background sweeper; expired tokens then go only on
// lookup.
type CSRFConfig struct {
	TokenTTL      time.Duration
	SweepInterval time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig tunes audit delivery. Buffer bounds the async dispatch
// queue; events beyond it are dropped and counted, never blocked on.
type AuditConfig struct {
	Buffer int
}

// Rate-limit rule names recognized out of the box. Callers may add
// their own rules; these four always exist after defaults are applied.
const (
	RuleSignIn        = "auth.signIn"
	RuleSignUp        = "auth.signUp"
	RulePasswordReset = "auth.passwordReset"
	RuleGeneralAPI    = "api.general"
)

// DefaultConfig returns the documented defaults: 5 failed attempts and
// a 15 minute lockout, 30 day sessions capped at 10 per user, 60
// minute CSRF tokens, and the four standard rate-limit rules.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		Session: SessionConfig{
			SessionDuration:    30 * 24 * time.Hour,
			MaxSessionsPerUser: 10,
		},
		CSRF: CSRFConfig{
			TokenTTL:      time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Rules: DefaultRules(),
		Audit: AuditConfig{
			Buffer: 256,
		},
	}
}

// DefaultRules returns the standard named rate-limit rules.
func DefaultRules() []ratelimit.Rule {
	return []ratelimit.Rule{
		{Name: RuleSignIn, Window: 15 * time.Minute, MaxRequests: 5, Message: "too many sign-in attempts"},
		{Name: RuleSignUp, Window: time.Hour, MaxRequests: 3, Message: "too many sign-up attempts"},
		{Name: RulePasswordReset, Window: time.Hour, MaxRequests: 3, Message: "too many password reset attempts"},
		{Name: RuleGeneralAPI, Window: 15 * time.Minute, MaxRequests: 100, Message: "too many requests"},
	}
}

// Validate checks the config for internal consistency. Rule-level
// validation happens in ratelimit.New; this covers everything else.
func (c *Config) Validate() error {
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("lockout: max failed attempts must be positive")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("lockout: duration must be positive")
	}
	if c.Session.SessionDuration <= 0 {
		return errors.New("session: duration must be positive")
	}
	if c.Session.MaxSessionsPerUser <= 0 {
		return errors.New("session: max sessions per user must be positive")
	}
	if c.CSRF.TokenTTL <= 0 {
		return errors.New("csrf: token ttl must be positive")
	}
	if c.CSRF.SweepInterval < 0 {
		return errors.New("csrf: sweep interval must not be negative")
	}
	if len(c.Rules) == 0 {
		return errors.New("ratelimit: at least one rule required")
	}
	seen := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("ratelimit: duplicate rule %q", rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}
	return nil
}
