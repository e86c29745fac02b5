// Package domain contains core domain types for the doubt solver.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	// RoleUser marks a message typed by the learner.
	RoleUser Role = "user"
	// RoleBot marks a message produced by the assistant.
	RoleBot Role = "bot"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot:
		return true
	}
	return false
}

// Speaker returns the label used when a transcript is shown to a person.
func (r Role) Speaker() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleBot:
		return "AI"
	}
	return string(r)
}

// contextLabel returns the label used in the context sent to the model.
func (r Role) contextLabel() string {
	if r == RoleUser {
		return "User"
	}
	return "AI"
}

// TimestampLayout matches the ISO-8601 form browsers produce with toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is a single transcript entry. Messages are never mutated once created.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewUserMessage creates a learner message stamped with at.
func NewUserMessage(content string, at time.Time) Message {
	return newMessage(RoleUser, content, at)
}

// NewBotMessage creates an assistant message stamped with at.
func NewBotMessage(content string, at time.Time) Message {
	return newMessage(RoleBot, content, at)
}

func newMessage(role Role, content string, at time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// Time parses the message timestamp. Unparseable timestamps yield the zero time.
func (m Message) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the message shape.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown message role %q", m.Role)
	}
	return nil
}

// Transcript is the append-ordered message history of one session.
type Transcript []Message

// Context renders the transcript as the plain conversation text the model receives.
func (t Transcript) Context() string {
	lines := make([]string, 0, len(t))
	for _, m := range t {
		lines = append(lines, m.Role.contextLabel()+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// Last returns the most recent message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}
