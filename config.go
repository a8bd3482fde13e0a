package goSession

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Config is the engine configuration. Secrets are not part of Config; the master secret is
// passed to [Builder.WithMasterSecret] so a Config can be logged or serialized safely.
type Config struct {
	Namespaces []NamespaceConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
NAMESPACE CONFIG
====================================
*/

// NamespaceConfig describes one cookie namespace.
//
// Zero durations disable the matching feature. A namespace with neither deadline seals the
// bare identity and stays readable by deployments that predate structured cookies.
type NamespaceConfig struct {
	// Name identifies the namespace in logs, metrics and [Engine.Namespace].
	Name string
	// CookieName is the cookie carrying this namespace's identity. Must be unique.
	CookieName string
	Path       string
	Domain     string
	Secure     bool
	// SameSite zero means Lax.
	SameSite http.SameSite
	MaxAge   time.Duration

	LoginDeadline time.Duration
	VisitDeadline time.Duration
	Leeway        time.Duration

	// RequiredRole, when set, rejects hydrated users with any other role with 403.
	RequiredRole string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the two-namespace layout of the album service: an "admin" namespace
// restricted to the admin role and a "user" namespace restricted to the user role, each with
// a cookie named after the role.
func DefaultConfig() Config {
	return Config{
		Namespaces: []NamespaceConfig{
			{
				Name:         "admin",
				CookieName:   "admin",
				Path:         "/",
				Secure:       true,
				SameSite:     http.SameSiteLaxMode,
				RequiredRole: "admin",
			},
			{
				Name:         "user",
				CookieName:   "user",
				Path:         "/",
				Secure:       true,
				SameSite:     http.SameSiteLaxMode,
				RequiredRole: "user",
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Namespaces != nil {
		out.Namespaces = make([]NamespaceConfig, len(cfg.Namespaces))
		copy(out.Namespaces, cfg.Namespaces)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, or nil.
func (c *Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return errors.New("at least one namespace is required")
	}

	names := make(map[string]struct{}, len(c.Namespaces))
	cookies := make(map[string]struct{}, len(c.Namespaces))
	for i := range c.Namespaces {
		ns := &c.Namespaces[i]
		if ns.Name == "" {
			return fmt.Errorf("namespace %d: Name must not be empty", i)
		}
		if _, dup := names[ns.Name]; dup {
			return fmt.Errorf("namespace %q declared twice", ns.Name)
		}
		names[ns.Name] = struct{}{}

		if ns.CookieName == "" {
			return fmt.Errorf("namespace %q: CookieName must not be empty", ns.Name)
		}
		if _, dup := cookies[ns.CookieName]; dup {
			return fmt.Errorf("namespace %q: CookieName %q already used by another namespace", ns.Name, ns.CookieName)
		}
		cookies[ns.CookieName] = struct{}{}

		if _, err := ns.policy(); err != nil {
			return fmt.Errorf("namespace %q: %w", ns.Name, err)
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (ns NamespaceConfig) policy() (*session.Policy, error) {
	path := ns.Path
	if path == "" {
		path = session.DefaultPath
	}
	sameSite := ns.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return session.NewPolicyBuilder().
		Name(ns.CookieName).
		Path(path).
		Domain(ns.Domain).
		Secure(ns.Secure).
		SameSite(sameSite).
		MaxAge(ns.MaxAge).
		LoginDeadline(ns.LoginDeadline).
		VisitDeadline(ns.VisitDeadline).
		Leeway(ns.Leeway).
		Build()
}
