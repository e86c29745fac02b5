package filter

import (
	"regexp"
	"strings"
)

// RefusalReply is returned instead of a model answer when the gate rejects a query.
// It matches the default filter rules, so it is shown but never persisted.
const RefusalReply = "I can only help with coding problems and related questions. Please ask something about the current problem, programming concepts, algorithms, or coding techniques."

var (
	programmingTerms = regexp.MustCompile(`(?i)algorithm|code|program|function|method|class|object|variable|loop|array|string|int|float|boolean|list|map|hash|tree|graph|stack|queue|recursion|iteration|sort|search|complexity|big o|time|space|memory|optimize|efficient|solve|solution|approach|implement|debug|error|fix|problem|challenge|test|case|example|input|output|return|concept|data structure|logic|syntax|language|python|java|javascript|c\+\+|c#|go|rust|swift|kotlin|typescript|php|ruby|scala|help|hint|explain|understand|how|what|why|edge case|corner case|test case|boundary|constraint|limitation|restriction|requirement`)
	questionWords = regexp.MustCompile(`(?i)how|what|why|can|should|would|will|is|are|does|do|explain`)
	greetings     = regexp.MustCompile(`(?i)hello|hi|hey|greet`)
)

// Gate is a loose heuristic deciding whether a query looks programming related.
// It lets almost everything through and is not a security boundary.
type Gate struct{}

// Allow reports whether query should be sent to the model.
func (Gate) Allow(query string) bool {
	if programmingTerms.MatchString(query) ||
		strings.Contains(query, "?") ||
		questionWords.MatchString(query) {
		return true
	}
	if greetings.MatchString(query) {
		return true
	}
	return len(strings.Split(query, " ")) <= 3
}
