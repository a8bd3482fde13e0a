package goSession

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/rs/zerolog"
)

// Engine owns the keyring, the namespaces and the identity store. It is immutable after
// [Builder.Build] and safe for concurrent use.
type Engine struct {
	config     Config
	keyring    *cookie.Keyring
	store      IdentityStore
	logger     zerolog.Logger
	clock      Clock
	namespaces []*Namespace
	byName     map[string]*Namespace
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Namespace returns the namespace called name.
func (e *Engine) Namespace(name string) (*Namespace, bool) {
	if e == nil {
		return nil, false
	}
	ns, ok := e.byName[name]
	return ns, ok
}

// Namespaces returns every namespace in configuration order.
func (e *Engine) Namespaces() []*Namespace {
	if e == nil {
		return nil
	}
	out := make([]*Namespace, len(e.namespaces))
	copy(out, e.namespaces)
	return out
}

// Login attaches a freshly minted identity cookie for user in every namespace whose role gate
// admits the user's role, and returns the names of those namespaces.
//
// It returns [ErrPermissionDenied] when no namespace admits the user. On a seal failure the
// error wraps [ErrInternal] and cookies already attached for earlier namespaces stay.
func (e *Engine) Login(w http.ResponseWriter, user User) ([]string, error) {
	return e.login(context.Background(), "", w, user)
}

// LoginRequest is [Engine.Login] with r's context and client address flowing into the audit
// events, so a blocking audit queue gives up when the request is cancelled.
func (e *Engine) LoginRequest(w http.ResponseWriter, r *http.Request, user User) ([]string, error) {
	return e.login(r.Context(), clientIP(r), w, user)
}

func (e *Engine) login(ctx context.Context, ip string, w http.ResponseWriter, user User) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if user.Username == "" {
		return nil, ErrEmptyUsername
	}

	var names []string
	for _, ns := range e.namespaces {
		if !ns.admits(user) {
			continue
		}
		if err := ns.login(ctx, ip, w, user); err != nil {
			return names, err
		}
		names = append(names, ns.name)
	}
	if len(names) == 0 {
		e.logger.Debug().Str("username", user.Username).Str("role", user.Role).Msg("login: no namespace admits role")
		e.emitAudit(ctx, auditEventPermissionDenied, "", user.Username, ip, false, auditErrRoleDenied)
		return nil, ErrPermissionDenied
	}
	return names, nil
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}
