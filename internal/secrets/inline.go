package secrets

import "context"

type inlineProvider struct {
	cfg InlineConfig
}

// Resolve returns the literal configured map, copied so callers can't
// mutate the provider's config through the returned value.
func (p *inlineProvider) Resolve(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(p.cfg.Values))
	for k, v := range p.cfg.Values {
		out[k] = v
	}
	return out, nil
}
