package secrets

import (
	"context"
	"os"
	"slices"
	"strings"
)

type processProvider struct {
	cfg ProcessConfig
}

// Resolve reads from the ambient process environment. Prefix filters by
// prefix but preserves the full key name in the emitted map — the source
// behavior spec §9 documents as an explicit open-question resolution, not
// stripped. Allowlist restricts to named keys; blocklist subtracts and
// wins over allowlist.
func (p *processProvider) Resolve(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if p.cfg.Prefix != "" && !strings.HasPrefix(key, p.cfg.Prefix) {
			continue
		}
		if len(p.cfg.Allowlist) > 0 && !slices.Contains(p.cfg.Allowlist, key) {
			continue
		}
		if slices.Contains(p.cfg.Blocklist, key) {
			continue
		}
		out[key] = val
	}
	return out, nil
}
