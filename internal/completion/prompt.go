package completion

import (
	"regexp"
	"strings"
)

const systemGuidelines = `You are an AI assistant that helps users solve coding problems on maang.in. Your responses must be:

1. WELL-FORMATTED with headings, bullet points and clear structure
2. CLEAR AND CONCISE, with code examples when requested
3. FOCUSED ONLY on coding and problem-solving topics
4. HELPFUL in building understanding without giving away complete solutions unless explicitly asked
5. SPECIFIC to the current problem

Guidelines:
- Put code in triple-backtick blocks
- Use markdown headers (#) and bullet points (- or *)
- Break complex ideas into small steps
- Include time and space complexity when relevant
- Always answer questions related to programming, algorithms, data structures, debugging or software development
- Only reply "I can only help with coding problems and related questions" when a question is entirely unrelated to programming`

const exampleResponses = `Examples of well-formatted answers:

User: How do I approach the two sum problem?
AI: # Two Sum Approach

1. **Brute Force**: check every pair, O(n²) time.
2. **Hash Map** (recommended): O(n) time, O(n) space.
   - Store each value's index in a map
   - For each number, look up target - number
   - Return both indices when found

User: What's the time complexity of merge sort?
AI: # Merge Sort Complexity

Merge sort runs in **O(n log n)** in the best, average and worst case:
- Splitting halves the input, giving log n levels
- Merging touches every element once per level`

var (
	codeQuery       = regexp.MustCompile(`(?i)code|solution|implement|write`)
	complexityQuery = regexp.MustCompile(`(?i)complexity|big o`)
	hintQuery       = regexp.MustCompile(`(?i)help|hint|approach`)
)

// BuildPrompt assembles the full prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(systemGuidelines)
	b.WriteString("\n\n")
	b.WriteString(exampleResponses)
	b.WriteString("\n\nHere is the problem statement:\n")
	b.WriteString(req.ProblemStatement)
	b.WriteString("\n")

	if req.UserCode != "" {
		b.WriteString("\nUser's current code:\n```\n")
		b.WriteString(req.UserCode)
		b.WriteString("\n```\n")
	}

	if req.PriorContext != "" {
		b.WriteString("\nPrevious conversation context:\n")
		b.WriteString(req.PriorContext)
		b.WriteString("\n")
	}

	b.WriteString("\nUser's query: ")
	b.WriteString(req.Query)

	if hint := queryHint(req.Query); hint != "" {
		b.WriteString("\n")
		b.WriteString(hint)
	}
	return b.String()
}

func queryHint(query string) string {
	switch {
	case codeQuery.MatchString(query):
		return "The user is asking for code. Provide a well-formatted, clearly indented solution with explanatory comments, descriptive names and logical sections."
	case complexityQuery.MatchString(query):
		return "Explain the time and space complexity step by step, including best, average and worst cases where they differ."
	case hintQuery.MatchString(query):
		return "Give hints and approaches in a structured way, starting with simpler ideas before more optimized ones."
	}
	return ""
}
