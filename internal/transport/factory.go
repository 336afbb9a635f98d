package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Factory constructs and memoizes transports per spec §4.D.
type Factory struct {
	cache *Cache
	log   *slog.Logger
}

// NewFactory creates a Factory. A nil cache gets a fresh one from
// NewCache (capped at 1000 entries).
func NewFactory(cache *Cache, log *slog.Logger) *Factory {
	if cache == nil {
		cache = NewCache()
	}
	return &Factory{cache: cache, log: log}
}

// Create validates cfg, then returns a cached transport for
// (configHash, authIdentity, storageIdentity) if one exists, or builds
// and caches a new one. authIdentity/storageIdentity are opaque
// identifiers the caller derives from its AuthProvider/Storage instance
// (e.g. a pointer address or config hash) — identical config with
// identical provider/storage instances returns the same transport;
// different instances with identical config return distinct transports.
func (f *Factory) Create(cfg Config, authIdentity, storageIdentity string) (Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config-validation failure: %w", err)
	}

	key := cacheKey{configHash: hashConfig(cfg), authIdentity: authIdentity, storageIdentity: storageIdentity}
	if t, ok := f.cache.get(key); ok {
		return t, nil
	}

	t := f.build(cfg)
	f.cache.set(key, t)
	return t, nil
}

func (f *Factory) build(cfg Config) Transport {
	switch cfg.Kind {
	case KindStdio:
		return NewStdioTransport(cfg, f.log)
	case KindSSE:
		return NewSSETransport(cfg, f.log)
	case KindWebSocket:
		return NewWebSocketTransport(cfg, f.log)
	case KindStreamableHTTP:
		return NewStreamableHTTPTransport(cfg, f.log)
	default:
		panic(fmt.Sprintf("transport: unreachable kind %q after validation", cfg.Kind))
	}
}

// hashConfig produces a stable hash of cfg for cache keying. Map
// iteration order is normalized by round-tripping through JSON, whose
// encoder sorts map keys.
func hashConfig(cfg Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("unhashable:%v", cfg)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
