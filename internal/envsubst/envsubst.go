// Package envsubst resolves "${VAR}" and "$VAR" references against a
// lookup function, shared by internal/secrets and internal/config so auth
// and secret construction fail the same way on a missing variable.
package envsubst

import (
	"fmt"
	"strings"
)

// MissingVarError reports a referenced variable with no value.
type MissingVarError struct {
	Var string
}

func (e *MissingVarError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Var)
}

// Expand replaces every "${VAR}" or "$VAR" occurrence in s using lookup.
// It returns a MissingVarError (wrapped, checkable with errors.As) the
// first time lookup reports a variable as absent.
func Expand(s string, lookup func(name string) (string, bool)) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '$' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteByte(s[i])
				i++
				continue
			}
			name := s[i+2 : i+2+end]
			val, ok := lookup(name)
			if !ok {
				return "", &MissingVarError{Var: name}
			}
			b.WriteString(val)
			i += 2 + end + 1
			continue
		}

		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		name := s[i+1 : j]
		val, ok := lookup(name)
		if !ok {
			return "", &MissingVarError{Var: name}
		}
		b.WriteString(val)
		i = j
	}
	return b.String(), nil
}

// ExpandLenient is like Expand but resolves missing variables to the
// empty string instead of failing. Used by the dotenv provider, whose
// interpolation semantics (spec §4.A) require undefined references to
// resolve to "" rather than abort the whole file.
func ExpandLenient(s string, lookup func(name string) (string, bool)) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '$' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteByte(s[i])
				i++
				continue
			}
			name := s[i+2 : i+2+end]
			val, _ := lookup(name)
			b.WriteString(val)
			i += 2 + end + 1
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		val, _ := lookup(s[i+1 : j])
		b.WriteString(val)
		i = j
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
