package session

import "github.com/ashureev/doubt-solver/internal/domain"

// Close reasons reported to renderers.
const (
	ReasonUser           = "user"
	ReasonProblemChanged = "problem_changed"
	ReasonIdle           = "idle"
	ReasonShutdown       = "shutdown"
)

// Renderer displays a surface's transcript. Implementations must be safe for
// concurrent use; calls for one surface arrive in display order.
type Renderer interface {
	// Reset wipes the displayed transcript and binds the surface to sessionID.
	Reset(surfaceID string, sessionID domain.SessionID)
	// Show appends one message to the displayed transcript.
	Show(surfaceID string, msg domain.Message)
	// Closed removes the chat surface.
	Closed(surfaceID string, reason string)
}

// NopRenderer displays nothing.
type NopRenderer struct{}

// Reset implements Renderer.
func (NopRenderer) Reset(string, domain.SessionID) {}

// Show implements Renderer.
func (NopRenderer) Show(string, domain.Message) {}

// Closed implements Renderer.
func (NopRenderer) Closed(string, string) {}
