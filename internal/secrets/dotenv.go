package secrets

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/revittco/mcplexer/internal/envsubst"
)

type dotenvProvider struct {
	cfg DotenvConfig
}

// Resolve reads and parses a dotenv file. A missing file is non-fatal and
// yields an empty map (spec §4.A). Interpolation resolves `$VAR`/`${VAR}`
// against the complete set of keys defined anywhere in the file, not just
// those seen earlier — a later `PATH=...` satisfies an earlier
// `PATH_WITH_VAR="$PATH"` (spec §8 scenario 3). A reference cycle
// (`A="$B"; B="$A"`) resolves both ends to empty rather than looping.
func (p *dotenvProvider) Resolve(_ context.Context) (map[string]string, error) {
	f, err := os.Open(p.cfg.Path)
	if err != nil {
		return map[string]string{}, nil
	}
	defer f.Close()

	raw := make(map[string]string)
	var order []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := raw[key]; !seen {
			order = append(order, key)
		}
		raw[key] = unquote(strings.TrimSpace(val))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dotenv %s: %w", p.cfg.Path, err)
	}

	resolved := make(map[string]string, len(raw))
	visiting := make(map[string]bool, len(raw))
	var resolve func(key string) string
	resolve = func(key string) string {
		if v, ok := resolved[key]; ok {
			return v
		}
		rawVal, ok := raw[key]
		if !ok {
			return ""
		}
		if visiting[key] {
			return ""
		}
		visiting[key] = true
		v := envsubst.ExpandLenient(rawVal, func(name string) (string, bool) {
			if _, ok := raw[name]; !ok {
				return "", false
			}
			return resolve(name), true
		})
		delete(visiting, key)
		resolved[key] = v
		return v
	}
	for _, key := range order {
		resolve(key)
	}
	return resolved, nil
}

// unquote strips a single layer of matching double or single quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
