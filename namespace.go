package goSession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/session"
)

// Namespace is one named cookie namespace of an [Engine]. All namespaces of an engine share
// its keyring and identity store; each has its own cookie name, policy and role gate.
type Namespace struct {
	engine       *Engine
	name         string
	policy       *session.Policy
	requiredRole string
}

// Name returns the namespace name from its configuration.
func (ns *Namespace) Name() string { return ns.name }

// CookieName returns the name of the cookie carrying this namespace's identity.
func (ns *Namespace) CookieName() string { return ns.policy.Name() }

// Policy returns the immutable session policy of the namespace.
func (ns *Namespace) Policy() *session.Policy { return ns.policy }

// RequiredRole returns the role gate, or "" when every role is admitted.
func (ns *Namespace) RequiredRole() string { return ns.requiredRole }

func (ns *Namespace) admits(user User) bool {
	return ns.requiredRole == "" || user.Role == ns.requiredRole
}

// rejection carries the internal reason a request was refused. Only err reaches the client.
type rejection struct {
	err      error
	metric   MetricID
	event    string
	code     AuditErrorCode
	cause    error
	username string
}

// Handler wraps next so that it only runs for requests carrying a valid identity cookie of
// this namespace whose user exists and passes the role gate.
//
// Requests without an acceptable cookie get 401, store failures 500 and role mismatches 403,
// each with a generic body. Otherwise next runs with the identity available through
// [IdentityFrom]. When next commits the response head, or returns without writing, the
// identity is re-sealed: a logout clears the cookie and a visit-deadline policy refreshes it.
func (ns *Namespace) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ns == nil || ns.engine == nil {
			WriteError(w, ErrEngineNotReady)
			return
		}

		slot, rej := ns.hydrate(r)
		if rej != nil {
			ns.reject(w, r, rej)
			return
		}

		sw := &sessionWriter{
			ResponseWriter: w,
			ns:             ns,
			slot:           slot,
			ctx:            r.Context(),
			ip:             clientIP(r),
		}
		// Deferred so a panicking handler still leaves the cookie in the header map for
		// whatever recovers it.
		defer sw.commit()
		next.ServeHTTP(sw, r.WithContext(withIdentitySlot(r.Context(), slot)))
	})
}

func (ns *Namespace) hydrate(r *http.Request) (*identitySlot, *rejection) {
	e := ns.engine
	start := time.Now()

	c, err := r.Cookie(ns.policy.Name())
	if err != nil || c.Value == "" {
		return nil, &rejection{
			err:    ErrUnauthorized,
			metric: MetricSessionMissing,
			event:  auditEventAuthFailure,
			code:   auditErrCookieMissing,
			cause:  cookie.ErrMissing,
		}
	}

	payload, format, err := cookie.Open(c.Value, e.keyring, ns.policy.Name(), ns.policy.LegacyCompatible())
	if err != nil {
		code := auditErrCookieForged
		if errors.Is(err, cookie.ErrMalformed) {
			code = auditErrCookieMalformed
		}
		return nil, &rejection{
			err:    ErrUnauthorized,
			metric: MetricSessionRejected,
			event:  auditEventAuthFailure,
			code:   code,
			cause:  err,
		}
	}

	if err := ns.policy.Check(payload, e.now()); err != nil {
		rej := &rejection{
			err:      ErrUnauthorized,
			metric:   MetricSessionExpired,
			event:    auditEventAuthFailure,
			code:     auditErrSessionExpired,
			cause:    err,
			username: payload.Identity,
		}
		if !errors.Is(err, session.ErrLoginExpired) && !errors.Is(err, session.ErrVisitExpired) {
			rej.metric = MetricSessionRejected
			rej.code = auditErrTimestampInvalid
		}
		return nil, rej
	}

	e.metricInc(MetricSessionDecoded)
	if format == cookie.FormatLegacy {
		e.metricInc(MetricLegacyDecoded)
	}

	user, err := e.store.LookupByUsername(r.Context(), payload.Identity)
	e.metricObserve(MetricHydrateLatency, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, &rejection{
				err:      ErrInternal,
				metric:   MetricStoreUnavailable,
				event:    auditEventStoreUnavailable,
				code:     auditErrUnavailable,
				cause:    err,
				username: payload.Identity,
			}
		}
		return nil, &rejection{
			err:      ErrUnauthorized,
			metric:   MetricUserNotFound,
			event:    auditEventAuthFailure,
			code:     auditErrUserNotFound,
			cause:    err,
			username: payload.Identity,
		}
	}

	if !ns.admits(user) {
		return nil, &rejection{
			err:      ErrPermissionDenied,
			metric:   MetricRoleDenied,
			event:    auditEventPermissionDenied,
			code:     auditErrRoleDenied,
			cause:    fmt.Errorf("role %q is not %q", user.Role, ns.requiredRole),
			username: user.Username,
		}
	}

	return &identitySlot{ns: ns, user: &user, payload: payload}, nil
}

func (ns *Namespace) reject(w http.ResponseWriter, r *http.Request, rej *rejection) {
	e := ns.engine
	e.metricInc(rej.metric)

	ev := e.logger.Debug()
	if errors.Is(rej.err, ErrInternal) {
		ev = e.logger.Error()
	}
	ev.Str("namespace", ns.name).
		Str("reason", string(rej.code)).
		Str("username", rej.username).
		Err(rej.cause).
		Msg("session rejected")

	e.emitAudit(r.Context(), rej.event, ns.name, rej.username, clientIP(r), false, rej.code)
	WriteError(w, rej.err)
}

// finalize writes the outgoing cookie for slot, at most once per response.
func (ns *Namespace) finalize(ctx context.Context, w http.ResponseWriter, slot *identitySlot, ip string) {
	slot.mu.Lock()
	if slot.settled {
		slot.mu.Unlock()
		return
	}
	slot.settled = true
	user, changed, payload := slot.user, slot.changed, slot.payload
	slot.mu.Unlock()

	e := ns.engine
	switch {
	case changed:
		http.SetCookie(w, cookie.Clear(ns.policy.Attributes()))
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, ns.name, payload.Identity, ip, true, "")
	case user != nil && ns.policy.RequiresRefresh():
		refreshed := ns.policy.Refresh(payload, e.now())
		c, err := cookie.Seal(&refreshed, e.keyring, ns.policy.Format(), ns.policy.Attributes())
		if err != nil {
			e.metricInc(MetricSealFailure)
			e.logger.Error().Err(err).Str("namespace", ns.name).Msg("refresh: seal identity cookie")
			return
		}
		http.SetCookie(w, c)
		e.metricInc(MetricSessionRefreshed)
	}
}

// Login attaches a freshly minted identity cookie for user in namespace ns to w. It must be
// called before the response head is written.
//
// Login returns [ErrPermissionDenied] when the namespace's role gate rejects user, and an
// error wrapping [ErrInternal] when the cookie cannot be sealed; the handler should then
// answer 500. Called inside ns's own Handler, Login replaces the request's identity so that
// finalization does not overwrite the new cookie.
//
// Login audits with a background context and no client address; handlers that have the
// request should call [LoginRequest].
func Login(w http.ResponseWriter, ns *Namespace, user User) error {
	return ns.login(context.Background(), "", w, user)
}

// LoginRequest is [Login] with r's context and client address flowing into the audit event.
func LoginRequest(w http.ResponseWriter, r *http.Request, ns *Namespace, user User) error {
	return ns.login(r.Context(), clientIP(r), w, user)
}

func (ns *Namespace) login(ctx context.Context, ip string, w http.ResponseWriter, user User) error {
	if ns == nil || ns.engine == nil {
		return ErrEngineNotReady
	}
	if user.Username == "" {
		return ErrEmptyUsername
	}
	e := ns.engine
	if !ns.admits(user) {
		e.logger.Debug().Str("namespace", ns.name).Str("username", user.Username).Msg("login: role not admitted")
		return ErrPermissionDenied
	}

	payload := ns.policy.Mint(user.Username, e.now())
	c, err := cookie.Seal(&payload, e.keyring, ns.policy.Format(), ns.policy.Attributes())
	if err != nil {
		e.metricInc(MetricSealFailure)
		e.logger.Error().Err(err).Str("namespace", ns.name).Msg("login: seal identity cookie")
		e.emitAudit(ctx, auditEventLoginFailure, ns.name, user.Username, ip, false, auditErrSealFailed)
		return fmt.Errorf("%w: seal %s cookie", ErrInternal, ns.name)
	}

	if slot := trackedSlot(w, ns); slot != nil {
		u := user
		slot.mu.Lock()
		slot.user = &u
		slot.changed = false
		slot.payload = payload
		slot.settled = true
		slot.mu.Unlock()
	}

	http.SetCookie(w, c)
	e.metricInc(MetricLogin)
	e.emitAudit(ctx, auditEventLoginSuccess, ns.name, user.Username, ip, true, "")
	return nil
}

// trackedSlot finds the identity slot ns's Handler attached to w, looking through wrappers
// that implement Unwrap.
func trackedSlot(w http.ResponseWriter, ns *Namespace) *identitySlot {
	for w != nil {
		if sw, ok := w.(*sessionWriter); ok && sw.ns == ns {
			return sw.slot
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}

// sessionWriter finalizes the identity cookie right before the response head is committed.
type sessionWriter struct {
	http.ResponseWriter

	ns   *Namespace
	slot *identitySlot
	ctx  context.Context
	ip   string
	once sync.Once
}

func (w *sessionWriter) commit() {
	w.once.Do(func() {
		w.ns.finalize(w.ctx, w.ResponseWriter, w.slot, w.ip)
	})
}

func (w *sessionWriter) WriteHeader(code int) {
	// Informational responses do not carry Set-Cookie for the final response.
	if code >= http.StatusOK || code == http.StatusSwitchingProtocols {
		w.commit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
