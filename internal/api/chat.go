package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/ashureev/doubt-solver/internal/completion"
	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/export"
	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/session"
)

type problemRequest struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	UserCode  string `json:"userCode"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type transcriptResponse struct {
	SessionID  domain.SessionID  `json:"session_id"`
	State      domain.State      `json:"state,omitempty"`
	Transcript domain.Transcript `json:"transcript"`
}

// UpdateProblem records the problem the surface is showing. A different problem
// closes an open chat surface.
func (h *Handler) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())

	var req problemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctrl := h.sessions.Get(surfaceID)
	changed := h.tracker.Update(surfaceID, domain.Problem{
		ID:        strings.TrimSpace(req.ID),
		Statement: req.Statement,
		UserCode:  req.UserCode,
	})

	snap := ctrl.Snapshot()
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": identity.Resolve(h.tracker.Source(surfaceID)),
		"changed":    changed,
		"state":      snap.State,
	})
}

// State returns the surface snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())
	JSON(w, http.StatusOK, h.sessions.Get(surfaceID).Snapshot())
}

// Open opens the chat surface for the current problem.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())
	ctrl := h.sessions.Get(surfaceID)

	transcript, err := ctrl.Open(r.Context())
	if err != nil {
		h.writeSessionError(w, surfaceID, err)
		return
	}

	snap := ctrl.Snapshot()
	JSON(w, http.StatusOK, transcriptResponse{
		SessionID:  snap.SessionID,
		State:      snap.State,
		Transcript: transcript,
	})
}

// Close closes the chat surface.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())
	ctrl := h.sessions.Get(surfaceID)
	ctrl.Close(session.ReasonUser)
	JSON(w, http.StatusOK, map[string]domain.State{"state": ctrl.Snapshot().State})
}

// Query answers one learner query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.limiter.Allow(surfaceID) {
		h.logger.Warn("Query rate limited", "surface_id", surfaceID)
		Error(w, http.StatusTooManyRequests, "too many queries, slow down")
		return
	}

	reply, err := h.sessions.Get(surfaceID).Submit(r.Context(), req.Query)
	if err != nil {
		h.writeSessionError(w, surfaceID, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}

// Clear deletes the open session's history.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())
	ctrl := h.sessions.Get(surfaceID)

	transcript, err := ctrl.Clear(r.Context())
	if err != nil {
		h.writeSessionError(w, surfaceID, err)
		return
	}
	snap := ctrl.Snapshot()
	JSON(w, http.StatusOK, transcriptResponse{
		SessionID:  snap.SessionID,
		State:      snap.State,
		Transcript: transcript,
	})
}

// Export downloads the open session as a text file.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())

	doc, err := h.sessions.Get(surfaceID).Export(r.Context())
	if err != nil {
		h.writeSessionError(w, surfaceID, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc.Body)); err != nil {
		h.logger.Debug("Failed to write export", "surface_id", surfaceID, "error", err)
	}
}

// History returns a stored transcript. Without a session_id query parameter the
// surface's current problem is used.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	surfaceID := identity.SurfaceIDFromContext(r.Context())

	id := domain.SessionID(strings.TrimSpace(r.URL.Query().Get("session_id")))
	if id == "" {
		id = identity.Resolve(h.tracker.Source(surfaceID))
	}
	JSON(w, http.StatusOK, transcriptResponse{
		SessionID:  id,
		Transcript: h.history.Load(r.Context(), id),
	})
}

// Sessions lists every stored session.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.history.Sessions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *Handler) writeSessionError(w http.ResponseWriter, surfaceID string, err error) {
	switch {
	case errors.Is(err, completion.ErrMissingCredential):
		Error(w, http.StatusPreconditionFailed, completion.MissingKeyReply)
	case errors.Is(err, session.ErrNotOpen):
		Error(w, http.StatusConflict, "chat is not open")
	case errors.Is(err, session.ErrEmptyQuery):
		Error(w, http.StatusBadRequest, "query cannot be empty")
	default:
		h.logger.Error("Chat operation failed", "surface_id", surfaceID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
