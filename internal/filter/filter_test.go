package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFilterCatchesDegenerateReplies(t *testing.T) {
	t.Parallel()

	f := NewDefault()
	replies := []string{
		"Sorry, I couldn't generate a response.",
		"Error processing request. Try again later.",
		"API key missing.",
		"I can only help with coding problems and related questions.",
		"I'm unable to access external links.",
		"I DON'T HAVE enough information.",
		"This assistant is not designed for that.",
		RefusalReply,
	}
	for _, r := range replies {
		assert.True(t, f.ShouldFilter(r), "expected %q to be filtered", r)
	}
}

func TestDefaultFilterKeepsSubstantiveReplies(t *testing.T) {
	t.Parallel()

	f := NewDefault()
	assert.False(t, f.ShouldFilter("Use a hash map for O(n) lookup."))
	assert.False(t, f.ShouldFilter("Sort the array, then use two pointers."))
}

func TestMatchReportsRule(t *testing.T) {
	t.Parallel()

	rule, ok := NewDefault().Match("Sorry about that")
	require.True(t, ok)
	assert.Equal(t, "sorry", rule.Name)

	_, ok = NewDefault().Match("Use binary search.")
	assert.False(t, ok)
}

func TestEachDefaultRuleIsIndependent(t *testing.T) {
	t.Parallel()

	samples := map[string]string{
		"error":            "an ERROR occurred",
		"fail":             "request failed",
		"couldnt_generate": "I couldn't generate that",
		"api_key_missing":  "api key missing",
		"try_again_later":  "please try again later",
		"sorry":            "so sorry",
		"cant_answer":      "I can't answer this",
		"coding_only":      "I can only help with coding problems",
		"can_only_help":    "we can only help with math",
		"not_designed_for": "not designed for chat",
		"not_able_to":      "I'm not able to",
		"cannot_provide":   "I cannot provide that",
		"im_unable_to":     "I'm unable to",
		"i_am_unable_to":   "I am unable to",
		"dont_have":        "I don't have it",
		"do_not_have":      "I do not have it",
		"please_ask_about": "Please ask something about code",
	}
	for _, r := range DefaultRules() {
		sample, ok := samples[r.Name]
		require.True(t, ok, "missing sample for rule %s", r.Name)
		assert.True(t, r.Pattern.MatchString(sample), "rule %s did not match %q", r.Name, sample)
	}
}

func TestEmptyFilterKeepsEverything(t *testing.T) {
	t.Parallel()

	assert.False(t, New().ShouldFilter("error"))
}

func TestNewFromFileAddsRules(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - name: quota\n    pattern: \"quota exceeded\"\n  - pattern: \"rate[- ]limited\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := NewFromFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Rules(), len(DefaultRules())+2)

	rule, ok := f.Match("Quota Exceeded for model")
	require.True(t, ok)
	assert.Equal(t, "quota", rule.Name)

	rule, ok = f.Match("you are rate-limited")
	require.True(t, ok)
	assert.Equal(t, "custom_1", rule.Name)
}

func TestNewFromFileRejectsBadPattern(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: bad\n    pattern: \"(unclosed\"\n"), 0o600))

	_, err := NewFromFile(path)
	require.Error(t, err)
}

func TestNewFromFileEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	f, err := NewFromFile("")
	require.NoError(t, err)
	assert.Len(t, f.Rules(), len(DefaultRules()))
}
