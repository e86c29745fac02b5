// Package filter classifies assistant replies that should not be persisted and
// pre-screens learner queries before they reach the model.
package filter

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one named pattern that marks a reply as degenerate.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// NewRule compiles pattern case-insensitively.
func NewRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile rule %q: %w", name, err)
	}
	return Rule{Name: name, Pattern: re}, nil
}

func mustRule(name, pattern string) Rule {
	r, err := NewRule(name, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRules returns the built-in error, apology and refusal patterns.
func DefaultRules() []Rule {
	return []Rule{
		mustRule("error", `error`),
		mustRule("fail", `fail`),
		mustRule("couldnt_generate", `couldn't generate`),
		mustRule("api_key_missing", `API key missing`),
		mustRule("try_again_later", `try again later`),
		mustRule("sorry", `sorry`),
		mustRule("cant_answer", `I can't answer this`),
		mustRule("coding_only", `I can only help with coding problems`),
		mustRule("can_only_help", `can only help with`),
		mustRule("not_designed_for", `not designed for`),
		mustRule("not_able_to", `not able to`),
		mustRule("cannot_provide", `cannot provide`),
		mustRule("im_unable_to", `I'm unable to`),
		mustRule("i_am_unable_to", `I am unable to`),
		mustRule("dont_have", `I don't have`),
		mustRule("do_not_have", `I do not have`),
		mustRule("please_ask_about", `Please ask something about`),
	}
}

// Filter decides whether a reply is kept out of persisted history.
type Filter struct {
	rules []Rule
}

// New creates a Filter over rules. With no rules, nothing is filtered.
func New(rules ...Rule) *Filter {
	return &Filter{rules: append([]Rule(nil), rules...)}
}

// NewDefault creates a Filter over DefaultRules.
func NewDefault() *Filter {
	return New(DefaultRules()...)
}

// Rules returns a copy of the rule table.
func (f *Filter) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// Match returns the first rule matching reply.
func (f *Filter) Match(reply string) (Rule, bool) {
	for _, r := range f.rules {
		if r.Pattern.MatchString(reply) {
			return r, true
		}
	}
	return Rule{}, false
}

// ShouldFilter reports whether reply matches any rule.
func (f *Filter) ShouldFilter(reply string) bool {
	_, ok := f.Match(reply)
	return ok
}

type ruleFile struct {
	Rules []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// LoadRules reads extra rules from a YAML file of the form
//
//	rules:
//	  - name: quota
//	    pattern: "quota exceeded"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter rules: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse filter rules: %w", err)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("filter rule %d has an empty pattern", i)
		}
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("custom_%d", i)
		}
		rule, err := NewRule(name, r.Pattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// NewFromFile builds a Filter with the default rules plus those in path.
// An empty path yields the default filter.
func NewFromFile(path string) (*Filter, error) {
	if path == "" {
		return NewDefault(), nil
	}
	extra, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return New(append(DefaultRules(), extra...)...), nil
}
