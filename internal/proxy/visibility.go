// Package proxy implements the proxy multiplexer's tool-visibility rules:
// the decision of whether a namespaced tool name is surfaced to the
// downstream client, and the dynamic enable set that commands and
// server-dependency checks can mutate at runtime.
package proxy

import "strings"

// Config holds the static visibility configuration for a proxy instance,
// mirroring ProxyConfig's expose/hide/always-visible pattern lists.
type Config struct {
	ExposeTools        []string
	HideTools          []string
	AlwaysVisibleTools []string
	ExposeCoreTools    []string
}

// MatchesAny reports whether name matches any pattern in patterns.
// A nil or empty patterns slice never matches.
func MatchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchPattern(p, name) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether name matches pattern, where "*" in pattern
// matches any run of characters (including "__" namespace separators).
// Unlike a path glob, this is a single flat string match: there is no
// per-segment semantics, matching spec §3's "Patterns support `*`
// wildcard; matched against the namespaced tool name".
func MatchPattern(pattern, name string) bool {
	if pattern == "" {
		return name == ""
	}
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}

	segments := strings.Split(pattern, "*")
	rest := name

	// Leading segment must be a prefix (unless pattern starts with "*").
	if segments[0] != "" {
		if !strings.HasPrefix(rest, segments[0]) {
			return false
		}
		rest = rest[len(segments[0]):]
	}

	for i := 1; i < len(segments)-1; i++ {
		seg := segments[i]
		if seg == "" {
			continue
		}
		idx := strings.Index(rest, seg)
		if idx == -1 {
			return false
		}
		rest = rest[idx+len(seg):]
	}

	last := segments[len(segments)-1]
	if last == "" {
		return true
	}
	return strings.HasSuffix(rest, last)
}

// IsVisible implements spec §4.G's visibility decision function:
//
//	isVisible(t) = dyn.contains(t)
//	            ∨ matchesAny(alwaysVisibleTools, t)
//	            ∨ (exposeTools == undef ? !matchesAny(hideTools, t) : matchesAny(exposeTools, t))
//
// exposeTools wins over hideTools when both are defined and a tool
// matches both: a tool matching exposeTools is visible regardless of
// whether it also matches hideTools (spec §4.G, §9 open question).
func IsVisible(tool string, cfg Config, dyn *EnableSet) bool {
	if dyn != nil && dyn.Contains(tool) {
		return true
	}
	if MatchesAny(cfg.AlwaysVisibleTools, tool) {
		return true
	}
	if cfg.ExposeTools != nil {
		return MatchesAny(cfg.ExposeTools, tool)
	}
	return !MatchesAny(cfg.HideTools, tool)
}

// IsCoreToolVisible implements §4.G's separate rule for first-party core
// tools: an undefined exposeCoreTools exposes everything, an empty slice
// (non-nil, zero length) disables all of them.
func IsCoreToolVisible(tool string, cfg Config) bool {
	if cfg.ExposeCoreTools == nil {
		return true
	}
	return MatchesAny(cfg.ExposeCoreTools, tool)
}

// FilterVisible returns the subset of tools that are currently visible.
func FilterVisible(tools []string, cfg Config, dyn *EnableSet) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		if IsVisible(t, cfg, dyn) {
			out = append(out, t)
		}
	}
	return out
}
