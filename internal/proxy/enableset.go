package proxy

import "sync"

// Source identifies what added an entry to the dynamic enable set.
type Source string

// SourceServerDependency marks entries added by
// Registry.RequireServerConnected's ensureToolsExposed behavior (spec §4.G).
const SourceServerDependency Source = "server-dependency"

// EnableSet is the runtime-mutable "dynamic enable set" from spec §4.G /
// GLOSSARY: a set of tool-name patterns that must be visible regardless
// of the static expose/hide rules. Entries may be exact namespaced tool
// names or "*"-wildcard patterns (e.g. "{alias}__*"). Safe for concurrent
// use: reads from the downstream tools/list path race with writes from
// command handlers, and §5 only requires reader-writer consistency at
// call boundaries, not linearizability.
type EnableSet struct {
	mu      sync.RWMutex
	entries map[string]Source
}

// NewEnableSet returns an empty dynamic enable set.
func NewEnableSet() *EnableSet {
	return &EnableSet{entries: make(map[string]Source)}
}

// Add inserts pattern into the set, attributed to source. Re-adding an
// existing pattern overwrites its source.
func (s *EnableSet) Add(pattern string, source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[pattern] = source
}

// Remove deletes pattern from the set. A no-op if absent.
func (s *EnableSet) Remove(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, pattern)
}

// Contains reports whether name is covered by any entry in the set,
// either by exact match or by one of the entries' wildcard patterns.
func (s *EnableSet) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for pattern := range s.entries {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// Patterns returns a snapshot of the currently enabled patterns.
func (s *EnableSet) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for p := range s.entries {
		out = append(out, p)
	}
	return out
}

// RemoveBySource clears every entry attributed to source. Nothing calls
// it automatically when an upstream disconnects; grants stay until a
// caller removes them.
func (s *EnableSet) RemoveBySource(source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, src := range s.entries {
		if src == source {
			delete(s.entries, p)
		}
	}
}
