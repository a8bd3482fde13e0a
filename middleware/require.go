package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/go-chi/chi/v5"
)

// Require returns middleware that runs next behind the namespace called name. An unknown
// name is a wiring mistake, so every request fails with 500 instead of passing through
// unauthenticated.
func Require(engine *goSession.Engine, name string) func(http.Handler) http.Handler {
	ns, ok := engine.Namespace(name)
	return func(next http.Handler) http.Handler {
		if !ok {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				goSession.WriteError(w, goSession.ErrEngineNotReady)
			})
		}
		return ns.Handler(next)
	}
}

// Mount registers fn as a route group under pattern where every route requires the
// namespace called name.
func Mount(r chi.Router, pattern string, engine *goSession.Engine, name string, fn func(chi.Router)) {
	r.Route(pattern, func(sub chi.Router) {
		sub.Use(Require(engine, name))
		fn(sub)
	})
}
