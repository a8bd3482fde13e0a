package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/cookie"
)

var (
	// ErrLoginExpired is returned by [Policy.Check] when the login deadline has passed.
	ErrLoginExpired = errors.New("session: login deadline exceeded")
	// ErrVisitExpired is returned by [Policy.Check] when the visit deadline has passed.
	ErrVisitExpired = errors.New("session: visit deadline exceeded")
	// ErrTimestampMissing is returned when a configured deadline has no matching timestamp.
	ErrTimestampMissing = errors.New("session: required timestamp missing")
	// ErrTimestampInFuture is returned when a timestamp lies ahead of now by more than the leeway.
	ErrTimestampInFuture = errors.New("session: timestamp in the future")
	// ErrEmptyIdentity is returned for a payload without an identity.
	ErrEmptyIdentity = errors.New("session: empty identity")
)

// Default cookie attributes applied by [NewPolicyBuilder].
const (
	DefaultName = "session-identity"
	DefaultPath = "/"
)

// Policy is the immutable session policy of one namespace.
type Policy struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite
	maxAge   time.Duration

	loginDeadline time.Duration
	visitDeadline time.Duration
	leeway        time.Duration
}

// PolicyBuilder accumulates policy options. Zero durations mean "not configured".
type PolicyBuilder struct {
	p Policy
}

// NewPolicyBuilder returns a builder with the default attributes: path "/", Secure, SameSite
// Lax, no Max-Age, no deadlines and no clock leeway.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: Policy{
		name:     DefaultName,
		path:     DefaultPath,
		secure:   true,
		sameSite: http.SameSiteLaxMode,
	}}
}

// Name sets the cookie name.
func (b *PolicyBuilder) Name(name string) *PolicyBuilder {
	b.p.name = name
	return b
}

// Path sets the cookie path.
func (b *PolicyBuilder) Path(path string) *PolicyBuilder {
	b.p.path = path
	return b
}

// Domain sets the cookie domain. Empty leaves the attribute out.
func (b *PolicyBuilder) Domain(domain string) *PolicyBuilder {
	b.p.domain = domain
	return b
}

// Secure sets the Secure attribute.
func (b *PolicyBuilder) Secure(secure bool) *PolicyBuilder {
	b.p.secure = secure
	return b
}

// SameSite sets the SameSite attribute.
func (b *PolicyBuilder) SameSite(mode http.SameSite) *PolicyBuilder {
	b.p.sameSite = mode
	return b
}

// MaxAge sets the Max-Age attribute. Zero produces a browser-session cookie.
func (b *PolicyBuilder) MaxAge(d time.Duration) *PolicyBuilder {
	b.p.maxAge = d
	return b
}

// LoginDeadline bounds the time since login.
func (b *PolicyBuilder) LoginDeadline(d time.Duration) *PolicyBuilder {
	b.p.loginDeadline = d
	return b
}

// VisitDeadline bounds the time since the last visit and enables refresh on every request.
func (b *PolicyBuilder) VisitDeadline(d time.Duration) *PolicyBuilder {
	b.p.visitDeadline = d
	return b
}

// Leeway tolerates timestamps up to d ahead of now, for clock skew between replicas.
func (b *PolicyBuilder) Leeway(d time.Duration) *PolicyBuilder {
	b.p.leeway = d
	return b
}

// Build validates the options and returns the policy.
func (b *PolicyBuilder) Build() (*Policy, error) {
	p := b.p
	if p.name == "" {
		return nil, errors.New("session: cookie name must not be empty")
	}
	if err := (&http.Cookie{Name: p.name, Value: "x", Path: p.path, Domain: p.domain}).Valid(); err != nil {
		return nil, fmt.Errorf("session: invalid cookie attributes: %w", err)
	}
	if p.maxAge < 0 {
		return nil, errors.New("session: max age must be >= 0")
	}
	if p.loginDeadline < 0 || p.visitDeadline < 0 {
		return nil, errors.New("session: deadlines must be >= 0")
	}
	if p.leeway < 0 {
		return nil, errors.New("session: leeway must be >= 0")
	}
	switch p.sameSite {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode:
	case http.SameSiteNoneMode:
		if !p.secure {
			return nil, errors.New("session: SameSite=None requires Secure")
		}
	default:
		return nil, fmt.Errorf("session: unknown SameSite mode %d", p.sameSite)
	}
	return &p, nil
}

// Name returns the cookie name.
func (p *Policy) Name() string { return p.name }

// LoginDeadline returns the configured login deadline, zero when disabled.
func (p *Policy) LoginDeadline() time.Duration { return p.loginDeadline }

// VisitDeadline returns the configured visit deadline, zero when disabled.
func (p *Policy) VisitDeadline() time.Duration { return p.visitDeadline }

// LegacyCompatible reports whether neither deadline is configured. Such policies seal the bare
// identity and accept legacy cookies.
func (p *Policy) LegacyCompatible() bool {
	return p.loginDeadline == 0 && p.visitDeadline == 0
}

// RequiresRefresh reports whether a visit deadline is configured.
func (p *Policy) RequiresRefresh() bool {
	return p.visitDeadline > 0
}

// Format returns the cookie format new cookies are sealed in.
func (p *Policy) Format() cookie.Format {
	if p.LegacyCompatible() {
		return cookie.FormatLegacy
	}
	return cookie.FormatStructured
}

// Attributes returns the cookie attributes for this policy.
func (p *Policy) Attributes() cookie.Attributes {
	return cookie.Attributes{
		Name:     p.name,
		Path:     p.path,
		Domain:   p.domain,
		Secure:   p.secure,
		SameSite: p.sameSite,
		MaxAge:   p.maxAge,
	}
}

// Mint returns a fresh payload for identity. Each timestamp is set to now only when the
// matching deadline is configured.
func (p *Policy) Mint(identity string, now time.Time) cookie.Payload {
	now = now.UTC()
	out := cookie.Payload{Identity: identity}
	if p.loginDeadline > 0 {
		out.LoginTimestamp = &now
	}
	if p.visitDeadline > 0 {
		visit := now
		out.VisitTimestamp = &visit
	}
	return out
}

// Refresh returns prev with the visit timestamp moved to now. The login timestamp is carried
// over unchanged.
func (p *Policy) Refresh(prev cookie.Payload, now time.Time) cookie.Payload {
	out := cookie.Payload{Identity: prev.Identity}
	if p.loginDeadline > 0 && prev.LoginTimestamp != nil {
		login := *prev.LoginTimestamp
		out.LoginTimestamp = &login
	}
	if p.visitDeadline > 0 {
		visit := now.UTC()
		out.VisitTimestamp = &visit
	}
	return out
}

// Validate reports whether payload is acceptable at now.
func (p *Policy) Validate(payload cookie.Payload, now time.Time) bool {
	return p.Check(payload, now) == nil
}

// Check is Validate with the rejection reason. Elapsed time equal to a deadline still passes.
func (p *Policy) Check(payload cookie.Payload, now time.Time) error {
	if payload.Identity == "" {
		return ErrEmptyIdentity
	}
	if p.visitDeadline > 0 {
		if err := p.checkAge(payload.VisitTimestamp, now, p.visitDeadline, ErrVisitExpired); err != nil {
			return err
		}
	}
	if p.loginDeadline > 0 {
		if err := p.checkAge(payload.LoginTimestamp, now, p.loginDeadline, ErrLoginExpired); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) checkAge(ts *time.Time, now time.Time, deadline time.Duration, expired error) error {
	if ts == nil {
		return ErrTimestampMissing
	}
	age := now.Sub(*ts)
	if age < -p.leeway {
		return ErrTimestampInFuture
	}
	if age > deadline {
		return expired
	}
	return nil
}
