package domain

// State is the lifecycle state of a chat surface.
type State string

const (
	// StateClosed means no conversation is shown on the surface.
	StateClosed State = "CLOSED"
	// StateOpen means the surface shows the conversation for SessionID.
	StateOpen State = "OPEN"
)

// SurfaceSnapshot describes a chat surface at a point in time.
type SurfaceSnapshot struct {
	SurfaceID string    `json:"surface_id"`
	SessionID SessionID `json:"session_id,omitempty"`
	State     State     `json:"state"`
}

// IsOpen reports whether the surface is showing a conversation.
func (s SurfaceSnapshot) IsOpen() bool {
	return s.State == StateOpen
}
