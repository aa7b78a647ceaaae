package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/session"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN is optional: without it the portal runs on the in-memory
	// account seed instead of the postgres verifier.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	SessionCookie       string        `envconfig:"SESSION_COOKIE" default:"fraudlens_session"`
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"8h"`
	SessionRememberTTL  time.Duration `envconfig:"SESSION_REMEMBER_TTL" default:"720h"`
	SessionIdleTimeout  time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SessionWarningWin   time.Duration `envconfig:"SESSION_WARNING_WINDOW" default:"5m"`
	SessionRenewalWin   time.Duration `envconfig:"SESSION_RENEWAL_WINDOW" default:"8h"`
	SessionConflictPol  string        `envconfig:"SESSION_CONFLICT_POLICY" default:"terminate-existing"`
	StoreTimeout        time.Duration `envconfig:"STORE_TIMEOUT" default:"3s"`
	AuthMaxAttempts     int           `envconfig:"AUTH_MAX_ATTEMPTS" default:"5"`
	AuthLockoutWindow   time.Duration `envconfig:"AUTH_LOCKOUT_WINDOW" default:"15m"`
	NotifyLocale        string        `envconfig:"NOTIFY_LOCALE" default:"en"`
	LoginRatePerMinute  int           `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`
	GlobalRatePerMinute int           `envconfig:"GLOBAL_RATE_PER_MINUTE" default:"300"`

	// Extra permissions appended to the compiled-in role defaults. The
	// catalog still validates the superset invariant at startup, so an
	// extra granted only to a lower role fails boot.
	ExtraCitizenPerms    []string `envconfig:"AUTHZ_EXTRA_PERMS_CITIZEN"`
	ExtraOfficerPerms    []string `envconfig:"AUTHZ_EXTRA_PERMS_OFFICER"`
	ExtraAdminPerms      []string `envconfig:"AUTHZ_EXTRA_PERMS_ADMIN"`
	ExtraSuperAdminPerms []string `envconfig:"AUTHZ_EXTRA_PERMS_SUPERADMIN"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if !session.ConflictPolicy(cfg.SessionConflictPol).Valid() {
		return nil, fmt.Errorf("app: unknown SESSION_CONFLICT_POLICY %q", cfg.SessionConflictPol)
	}
	return &cfg, nil
}

// SessionConfig maps the environment knobs onto the lifecycle manager.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		TTL:            c.SessionTTL,
		RememberTTL:    c.SessionRememberTTL,
		IdleTimeout:    c.SessionIdleTimeout,
		WarningWindow:  c.SessionWarningWin,
		RenewalWindow:  c.SessionRenewalWin,
		ConflictPolicy: session.ConflictPolicy(c.SessionConflictPol),
	}
}

// CatalogDefinitions is the compiled-in role catalog plus any env extras.
func (c *Config) CatalogDefinitions() []authz.RoleDefinition {
	extras := map[authz.Role][]string{
		authz.RoleCitizen:    c.ExtraCitizenPerms,
		authz.RoleOfficer:    c.ExtraOfficerPerms,
		authz.RoleAdmin:      c.ExtraAdminPerms,
		authz.RoleSuperAdmin: c.ExtraSuperAdminPerms,
	}
	defs := authz.DefaultDefinitions()
	for i := range defs {
		defs[i].Permissions = append(defs[i].Permissions, extras[defs[i].Role]...)
	}
	return defs
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
