package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/settings"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/password"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const maxLoginBody = 4 << 10

type app struct {
	engine  *goSession.Engine
	store   accountStore
	hasher  *password.Hasher
	limiter *rate.Limiter
	log     zerolog.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User       goSession.User `json:"user"`
	Namespaces []string       `json:"namespaces"`
}

func newRouter(a *app, m settings.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(a.log))
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))

	r.Post("/login", a.login)
	for _, ns := range a.engine.Namespaces() {
		middleware.Mount(r, "/"+ns.Name(), a.engine, ns.Name(), func(r chi.Router) {
			r.Get("/whoami", a.whoami)
			r.Post("/logout", a.logout)
		})
	}
	if m.Enabled && m.Path != "" {
		r.Method(http.MethodGet, m.Path, promexport.New(a.engine).Handler())
	}
	return r
}

func (a *app) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	if !a.allowLogin(w, r, req.Username, ip) {
		return
	}

	user, err := a.store.LookupByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, goSession.ErrUserNotFound):
		// Unknown usernames pay for a hash comparison too.
		_ = a.hasher.Compare("", req.Password)
		a.failLogin(r, req.Username, ip)
		goSession.WriteError(w, goSession.ErrUnauthorized)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("login lookup failed")
		goSession.WriteError(w, goSession.ErrInternal)
		return
	}

	if err := a.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			hlog.FromRequest(r).Warn().Err(err).Str("username", user.Username).Msg("stored password hash rejected")
		}
		a.failLogin(r, req.Username, ip)
		goSession.WriteError(w, goSession.ErrUnauthorized)
		return
	}
	if err := a.limiter.Reset(r.Context(), user.Username); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("login limiter reset failed")
	}
	a.rehash(r, user, req.Password)

	names, err := a.engine.LoginRequest(w, r, user)
	if err != nil {
		goSession.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: user, Namespaces: names})
}

// allowLogin answers 429 when the username or client IP is out of attempts. A limiter
// outage is logged and the attempt goes through.
func (a *app) allowLogin(w http.ResponseWriter, r *http.Request, username, ip string) bool {
	err := a.limiter.Allow(r.Context(), username, ip)
	switch {
	case err == nil:
		return true
	case errors.Is(err, rate.ErrRateLimited):
		hlog.FromRequest(r).Warn().Str("username", username).Msg("login rate limited")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return false
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("login limiter unavailable")
		return true
	}
}

func (a *app) failLogin(r *http.Request, username, ip string) {
	if err := a.limiter.Fail(r.Context(), username, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		hlog.FromRequest(r).Error().Err(err).Msg("login limiter unavailable")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rehash upgrades a hash produced with weaker parameters. Failures only cost the upgrade.
func (a *app) rehash(r *http.Request, user goSession.User, plain string) {
	stale, err := a.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := a.hasher.Hash(plain)
	if err != nil {
		return
	}
	user.PasswordHash = hash
	if err := a.store.Put(r.Context(), user); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("username", user.Username).Msg("password rehash not saved")
	}
}

func (a *app) whoami(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, goSession.IdentityFrom(r).User())
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	goSession.IdentityFrom(r).Logout()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
