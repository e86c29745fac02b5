// Package identity resolves which problem a conversation belongs to and which chat
// surface a request comes from.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/google/uuid"
)

const (
	// SurfaceHeaderName carries the client-chosen chat surface ID.
	SurfaceHeaderName = "X-Doubt-Surface-ID"
	// SurfaceQueryParam is accepted where headers cannot be set (WebSocket upgrades).
	SurfaceQueryParam = "surface_id"
)

type contextKey int

const surfaceIDKey contextKey = iota

var surfaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ProblemSource reports the problem currently shown to the learner.
type ProblemSource interface {
	CurrentProblem() domain.Problem
}

// Resolve derives the session ID for the problem src currently reports.
// Nothing is cached: a navigation between calls yields a different ID.
func Resolve(src ProblemSource) domain.SessionID {
	if src == nil {
		return domain.UnknownProblemID
	}
	return ForProblem(src.CurrentProblem())
}

// ForProblem derives the session ID for p.
func ForProblem(p domain.Problem) domain.SessionID {
	title := strings.TrimSpace(p.ID)
	if title == "" {
		return domain.UnknownProblemID
	}
	return domain.SessionID(title)
}

// Resolver binds Resolve to one ProblemSource.
type Resolver struct {
	Source ProblemSource
}

// Resolve returns the session ID for the current problem.
func (r Resolver) Resolve() domain.SessionID {
	return Resolve(r.Source)
}

// SurfaceIDFromContext extracts the surface ID placed by Middleware.
func SurfaceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(surfaceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSurfaceID returns a context carrying surfaceID.
func WithSurfaceID(ctx context.Context, surfaceID string) context.Context {
	return context.WithValue(ctx, surfaceIDKey, surfaceID)
}

func sanitizeSurfaceID(id string) string {
	id = strings.TrimSpace(id)
	if !surfaceIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func surfaceIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SurfaceHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get(SurfaceQueryParam)
	}
	return sanitizeSurfaceID(sid)
}

// Middleware injects the request's surface ID, minting one when the client sent
// none or an invalid one. The effective ID is echoed in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		surfaceID := surfaceIDFromRequest(r)
		if surfaceID == "" {
			surfaceID = "surface-" + uuid.NewString()
		}
		w.Header().Set(SurfaceHeaderName, surfaceID)
		next.ServeHTTP(w, r.WithContext(WithSurfaceID(r.Context(), surfaceID)))
	})
}
