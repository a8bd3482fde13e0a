package goSession

import (
	"context"
	"net/http"
	"sync"

	"github.com/MrEthical07/goSession/cookie"
)

type identityContextKey struct{}

// identitySlot is the per-request identity state shared between the namespace middleware and
// the handler. The middleware reads it once when the response is committed.
type identitySlot struct {
	mu sync.Mutex

	ns      *Namespace
	user    *User
	changed bool
	payload cookie.Payload

	// settled is set once a cookie for this namespace has been written to the response, either
	// by finalization or by Login on the same response.
	settled bool
}

func withIdentitySlot(ctx context.Context, slot *identitySlot) context.Context {
	return context.WithValue(ctx, identityContextKey{}, slot)
}

func identitySlotFromContext(ctx context.Context) *identitySlot {
	if ctx == nil {
		return nil
	}
	slot, _ := ctx.Value(identityContextKey{}).(*identitySlot)
	return slot
}

// Identity is the handler-facing view of the request's identity slot. The zero Identity
// belongs to a request that no namespace handler wrapped.
type Identity struct {
	slot *identitySlot
}

// IdentityFrom returns the identity of r, as set up by the innermost namespace handler.
func IdentityFrom(r *http.Request) Identity {
	if r == nil {
		return Identity{}
	}
	return IdentityFromContext(r.Context())
}

// IdentityFromContext is IdentityFrom for code that only has the request context.
func IdentityFromContext(ctx context.Context) Identity {
	return Identity{slot: identitySlotFromContext(ctx)}
}

// User returns the hydrated user.
//
// User panics when the route is not wrapped by a namespace handler or the identity was logged
// out earlier in the request. Both are programming errors; use Lookup where either is expected.
func (id Identity) User() User {
	u, ok := id.Lookup()
	if !ok {
		if id.slot == nil {
			panic("goSession: identity requested on a route without a namespace handler")
		}
		panic("goSession: identity requested after logout")
	}
	return u
}

// Lookup returns the hydrated user and whether one is present.
func (id Identity) Lookup() (User, bool) {
	if id.slot == nil {
		return User{}, false
	}
	id.slot.mu.Lock()
	defer id.slot.mu.Unlock()
	if id.slot.user == nil {
		return User{}, false
	}
	return *id.slot.user, true
}

// Logout forgets the identity. The response then carries a clearing cookie for the namespace.
// Logout on an unwrapped route is a no-op.
func (id Identity) Logout() {
	if id.slot == nil {
		return
	}
	id.slot.mu.Lock()
	defer id.slot.mu.Unlock()
	id.slot.user = nil
	id.slot.changed = true
	if id.slot.settled && id.slot.ns != nil && id.slot.ns.engine != nil {
		id.slot.ns.engine.logger.Warn().
			Str("namespace", id.slot.ns.name).
			Msg("logout after the response was committed; cookie not cleared")
	}
}

// Namespace returns the name of the namespace that hydrated this identity, or "".
func (id Identity) Namespace() string {
	if id.slot == nil || id.slot.ns == nil {
		return ""
	}
	return id.slot.ns.name
}
