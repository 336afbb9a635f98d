package tokenstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefreshFunc obtains a fresh TokenData, typically by calling an OAuth2
// token endpoint. It is supplied by the auth provider that owns this
// Store, not by tokenstore itself.
type RefreshFunc func(ctx context.Context) (TokenData, error)

// Store wraps a Storage backend with the expiry-buffer and proactive
// refresh-scheduling semantics described in spec §4.B. Storage itself
// stays a dumb persistence slot; Store holds the mutex and the timer.
type Store struct {
	backend Storage
	buffer  time.Duration
	refresh RefreshFunc
	log     *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	tok   *TokenData
	ctx   context.Context
	stop  context.CancelFunc
}

// NewStore creates a Store over backend. refresh may be nil, in which
// case the Store never schedules proactive refreshes and IsExpired
// checks simply report staleness for the caller to handle.
func NewStore(backend Storage, buffer time.Duration, refresh RefreshFunc, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		backend: backend,
		buffer:  buffer,
		refresh: refresh,
		log:     log,
		ctx:     ctx,
		stop:    cancel,
	}
}

// Load returns the current token, reading through to the backend on
// first access.
func (s *Store) Load(ctx context.Context) (*TokenData, error) {
	s.mu.Lock()
	if s.tok != nil {
		cp := *s.tok
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	tok, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.tok = tok
	s.mu.Unlock()
	s.scheduleRefresh(*tok)
	return tok, nil
}

// Store persists tok, normalizing and validating it first, then
// (re)schedules a proactive refresh relative to its expiry.
func (s *Store) Store(ctx context.Context, tok TokenData) error {
	normalized, err := tok.normalize()
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, normalized); err != nil {
		return err
	}

	s.mu.Lock()
	s.tok = &normalized
	s.mu.Unlock()

	s.scheduleRefresh(normalized)
	return nil
}

// Delete clears the stored token and cancels any pending refresh.
func (s *Store) Delete(ctx context.Context) error {
	s.mu.Lock()
	s.tok = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.backend.Delete(ctx)
}

// IsExpired reports whether tok is expired relative to now, using the
// Store's configured buffer window.
func (s *Store) IsExpired(tok TokenData, now time.Time) bool {
	return tok.isExpired(now, s.buffer)
}

// Close stops any pending refresh timer. The Store must not be used
// after Close.
func (s *Store) Close() {
	s.stop()
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

// scheduleRefresh arms a one-shot timer to fire buffer before tok's
// expiry (or immediately, if already within the buffer window). A nil
// refresh func or zero ExpiresAt (never-expiring/unparseable) disables
// scheduling.
func (s *Store) scheduleRefresh(tok TokenData) {
	if s.refresh == nil || tok.ExpiresAt.IsZero() {
		return
	}

	fireAt := tok.ExpiresAt.Add(-s.buffer)
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.runRefresh)
	s.mu.Unlock()
}

// runRefresh invokes the provider's RefreshFunc and stores the result.
// A failed refresh is logged and swallowed; the caller retries on its
// own next access via IsExpired rather than via a retry timer, per
// spec §4.B's "single timer, not a retry loop" note.
func (s *Store) runRefresh() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	tok, err := s.refresh(ctx)
	if err != nil {
		s.log.Warn("token refresh failed", "error", err)
		return
	}
	if err := s.Store(ctx, tok); err != nil {
		s.log.Warn("token refresh: store failed", "error", err)
	}
}
