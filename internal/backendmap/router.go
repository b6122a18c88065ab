// Package backendmap resolves a client-supplied routing token (and its
// optional context suffix) to a real backend address, via an optional
// YAML rule table. Absent a match, or absent a table entirely, the
// routing token itself is used verbatim as the backend host — the
// spec's base behavior is always the fallback.
package backendmap

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matchers selects which requests a Rule applies to. An empty field
// matches anything.
type Matchers struct {
	Community string `yaml:"community"`
	Context   string `yaml:"context"`
	SrcIP     string `yaml:"srcIP"`
	DstPort   int    `yaml:"dstPort"`
}

// Action names the real backend address a matching request should be
// sent to.
type Action struct {
	Target string `yaml:"target"`
}

// Rule pairs a Matchers with the Action to take when it matches.
type Rule struct {
	Match  Matchers `yaml:"match"`
	Action Action   `yaml:"action"`
}

// Config is the top-level YAML document shape.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// RequestKey carries the fields of an incoming request that rules match
// against.
type RequestKey struct {
	Community string
	Context   string
	SrcIP     string
	DstPort   int
}

// Router selects a backend target for a RequestKey by walking a
// priority-ordered rule list.
type Router struct {
	rules []Rule
}

// NewRouter validates and priority-sorts rules into a Router.
func NewRouter(rules []Rule) (*Router, error) {
	validated := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.Action.Target) == "" {
			return nil, fmt.Errorf("rule %d: action.target is required", i)
		}
		validated = append(validated, rule)
	}

	sort.SliceStable(validated, func(i, j int) bool {
		return rulePriority(validated[i].Match) > rulePriority(validated[j].Match)
	})

	return &Router{rules: validated}, nil
}

// LoadFromFile reads and parses a backend-map YAML file.
func LoadFromFile(path string) (*Router, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend map: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse backend map yaml: %w", err)
	}

	return NewRouter(cfg.Rules)
}

// Resolve returns the backend target for key, or "" if no rule matches
// (in which case the caller should fall back to key.Community itself).
func (r *Router) Resolve(key RequestKey) string {
	if r == nil {
		return ""
	}
	for _, rule := range r.rules {
		if ruleMatches(rule.Match, key) {
			return rule.Action.Target
		}
	}
	return ""
}

func ruleMatches(m Matchers, key RequestKey) bool {
	if m.Community != "" && m.Community != key.Community {
		return false
	}
	if m.Context != "" && m.Context != key.Context {
		return false
	}
	if m.SrcIP != "" && m.SrcIP != key.SrcIP {
		return false
	}
	if m.DstPort != 0 && m.DstPort != key.DstPort {
		return false
	}
	return true
}

// rulePriority ranks more specific matchers above more general ones, so
// a community+context rule always outranks a bare community rule.
func rulePriority(m Matchers) int {
	if m.Community != "" && m.Context != "" {
		return 4
	}
	if m.Community != "" {
		return 3
	}
	if m.Context != "" {
		return 2
	}
	if m.SrcIP != "" || m.DstPort != 0 {
		return 1
	}
	return 0
}
