package domain

// SessionID names a problem-conversation pairing. It is derived from the problem title.
type SessionID string

// UnknownProblemID is used when the current problem title cannot be determined.
const UnknownProblemID SessionID = "unknown-problem"

// MissingStatement is shown in place of a problem statement that could not be scraped.
const MissingStatement = "Problem details not found."

// Problem is a snapshot of the page the learner is working on.
type Problem struct {
	ID        string `json:"id"`
	Statement string `json:"statement"`
	UserCode  string `json:"user_code"`
}

// StatementOrPlaceholder returns the statement, or MissingStatement when empty.
func (p Problem) StatementOrPlaceholder() string {
	if p.Statement == "" {
		return MissingStatement
	}
	return p.Statement
}
