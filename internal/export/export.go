// Package export renders a session transcript as a plain-text document.
package export

import (
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/doubt-solver/internal/domain"
)

const (
	// DateLayout formats the export date.
	DateLayout = "1/2/2006, 3:04:05 PM"
	// MessageTimeLayout formats each message's time of day.
	MessageTimeLayout = "3:04:05 PM"
	// ContentType is the media type of an exported document.
	ContentType = "text/plain; charset=utf-8"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Document is a formatted export ready to be saved.
type Document struct {
	Filename string
	Body     string
}

// Format renders the transcript of sessionID. Times are shown in loc; a nil loc
// means local time.
func Format(sessionID domain.SessionID, statement string, transcript domain.Transcript, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString("# AI Doubt Solver Chat - ")
	b.WriteString(string(sessionID))
	b.WriteString("\nDate: ")
	b.WriteString(now.In(loc).Format(DateLayout))
	b.WriteString("\n\n## Problem Statement\n")
	b.WriteString(statement)
	b.WriteString("\n\n## Conversation\n\n")

	for _, msg := range transcript {
		b.WriteString("[")
		b.WriteString(msg.Time().In(loc).Format(MessageTimeLayout))
		b.WriteString("] ")
		b.WriteString(msg.Role.Speaker())
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Filename returns the suggested file name for an export of sessionID.
func Filename(sessionID domain.SessionID) string {
	return "AI_Doubt_Solver_" + whitespaceRun.ReplaceAllString(string(sessionID), "_") + ".txt"
}

// New formats a complete Document.
func New(sessionID domain.SessionID, statement string, transcript domain.Transcript, now time.Time, loc *time.Location) Document {
	return Document{
		Filename: Filename(sessionID),
		Body:     Format(sessionID, statement, transcript, now, loc),
	}
}
