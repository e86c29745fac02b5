// Package middleware provides HTTP middleware for the doubt solver API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/ashureev/doubt-solver/internal/identity"
)

const allowedHeaders = "Content-Type, " + identity.SurfaceHeaderName

// CORS returns middleware that handles CORS headers. An entry ending in "://*"
// allows every origin of that scheme, which covers browser extension origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				if match, explicit := matchOrigin(allowedOrigins, origin); match {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
					w.Header().Set("Access-Control-Expose-Headers", identity.SurfaceHeaderName+", Content-Disposition")
					w.Header().Add("Vary", "Origin")
					// Credentials only for explicit origins, never wildcard matches.
					if explicit {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed reports whether origin matches an entry of allowedOrigins.
func OriginAllowed(allowedOrigins []string, origin string) bool {
	match, _ := matchOrigin(allowedOrigins, origin)
	return match
}

// matchOrigin reports whether origin is allowed and whether it matched an
// explicit entry rather than a wildcard.
func matchOrigin(allowedOrigins []string, origin string) (match, explicit bool) {
	for _, o := range allowedOrigins {
		switch {
		case o == origin:
			return true, true
		case o == "*":
			match = true
		case strings.HasSuffix(o, "://*") && strings.HasPrefix(origin, strings.TrimSuffix(o, "*")):
			match = true
		}
	}
	return match, false
}
