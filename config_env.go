package authguard

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfigFromEnv builds a Config from environment variables, after
// loading a .env file when one is present. Unset variables keep their
// documented defaults; malformed values are errors rather than silent
// fallbacks.
//
// Recognized variables:
//
//	AUTHGUARD_MAX_FAILED_ATTEMPTS
//	AUTHGUARD_LOCKOUT_DURATION_MINUTES
//	AUTHGUARD_SESSION_DURATION_SECONDS
//	AUTHGUARD_MAX_SESSIONS_PER_USER
//	AUTHGUARD_CSRF_TOKEN_TTL_MINUTES
//	AUTHGUARD_CSRF_SWEEP_INTERVAL_MINUTES
//	AUTHGUARD_AUDIT_BUFFER
func LoadConfigFromEnv() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := envInt("AUTHGUARD_MAX_FAILED_ATTEMPTS", &cfg.Lockout.MaxFailedAttempts); err != nil {
		return Config{}, err
	}
	if err := envMinutes("AUTHGUARD_LOCKOUT_DURATION_MINUTES", &cfg.Lockout.LockoutDuration); err != nil {
		return Config{}, err
	}
	if err := envSeconds("AUTHGUARD_SESSION_DURATION_SECONDS", &cfg.Session.SessionDuration); err != nil {
		return Config{}, err
	}
	if err := envInt("AUTHGUARD_MAX_SESSIONS_PER_USER", &cfg.Session.MaxSessionsPerUser); err != nil {
		return Config{}, err
	}
	if err := envMinutes("AUTHGUARD_CSRF_TOKEN_TTL_MINUTES", &cfg.CSRF.TokenTTL); err != nil {
		return Config{}, err
	}
	if err := envMinutes("AUTHGUARD_CSRF_SWEEP_INTERVAL_MINUTES", &cfg.CSRF.SweepInterval); err != nil {
		return Config{}, err
	}
	if err := envInt("AUTHGUARD_AUDIT_BUFFER", &cfg.Audit.Buffer); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = v
	return nil
}

func envMinutes(name string, dst *time.Duration) error {
	var v int
	if err := envInt(name, &v); err != nil {
		return err
	}
	if v > 0 {
		*dst = time.Duration(v) * time.Minute
	}
	return nil
}

func envSeconds(name string, dst *time.Duration) error {
	var v int
	if err := envInt(name, &v); err != nil {
		return err
	}
	if v > 0 {
		*dst = time.Duration(v) * time.Second
	}
	return nil
}
