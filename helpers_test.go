package goSession

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/cookie"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type mapStore struct {
	mu    sync.Mutex
	users map[string]User
	err   error
	calls atomic.Int64
}

func newMapStore(users ...User) *mapStore {
	s := &mapStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *mapStore) LookupByUsername(_ context.Context, username string) (User, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return User{}, s.err
	}
	u, ok := s.users[username]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u, nil
}

func (s *mapStore) put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

func (s *mapStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	alice = User{ID: 1, Username: "alice", Nickname: "Alice", Role: "user", PasswordHash: "x"}
	root  = User{ID: 2, Username: "root", Nickname: "Root", Role: "admin", PasswordHash: "y"}
)

func buildTestEngine(t *testing.T, cfg Config, store IdentityStore, clock *fakeClock) *Engine {
	t.Helper()

	b := New().
		WithConfig(cfg).
		WithMasterSecret(testSecret).
		WithIdentityStore(store)
	if clock != nil {
		b.WithClock(clock.Now)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustNamespace(t *testing.T, e *Engine, name string) *Namespace {
	t.Helper()
	ns, ok := e.Namespace(name)
	if !ok {
		t.Fatalf("namespace %q not found", name)
	}
	return ns
}

func testKeyring(t *testing.T) *cookie.Keyring {
	t.Helper()
	kr, err := cookie.NewKeyring(testSecret)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	return kr
}

// loginCookies runs Engine.Login against a recorder and returns the cookies it set.
func loginCookies(t *testing.T, e *Engine, u User) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if _, err := e.Login(rec, u); err != nil {
		t.Fatalf("Login(%s) failed: %v", u.Username, err)
	}
	return rec.Result().Cookies()
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func serve(h http.Handler, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// whoami writes the hydrated nickname.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(IdentityFrom(r).User().Nickname))
})
