package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	backend := NewMemoryStorage()
	store := NewStore(backend, time.Minute, nil, nil)
	defer store.Close()

	ctx := context.Background()
	want := TokenData{AccessToken: "tok-1", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Store(ctx, want); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.AccessToken != "tok-1" {
		t.Fatalf("Load() = %+v, want access token tok-1", got)
	}

	backendCopy, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("backend Load: %v", err)
	}
	if backendCopy == nil || backendCopy.AccessToken != "tok-1" {
		t.Fatalf("expected backend to be written through, got %+v", backendCopy)
	}
}

func TestStoreRejectsInvalidToken(t *testing.T) {
	store := NewStore(NewMemoryStorage(), time.Minute, nil, nil)
	defer store.Close()

	if err := store.Store(context.Background(), TokenData{}); err == nil {
		t.Fatal("expected error storing empty token")
	}
}

func TestStoreDeleteClearsCacheAndBackend(t *testing.T) {
	backend := NewMemoryStorage()
	store := NewStore(backend, time.Minute, nil, nil)
	defer store.Close()

	ctx := context.Background()
	if err := store.Store(ctx, TokenData{AccessToken: "a", TokenType: "Bearer"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil token after delete, got %+v", got)
	}
}

func TestStoreScheduleRefreshFiresAndSwallowsFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	refresh := func(ctx context.Context) (TokenData, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return TokenData{}, errTestRefreshFailed
	}

	store := NewStore(NewMemoryStorage(), 50*time.Millisecond, refresh, nil)
	defer store.Close()

	ctx := context.Background()
	tok := TokenData{
		AccessToken: "a",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(60 * time.Millisecond),
	}
	if err := store.Store(ctx, tok); err != nil {
		t.Fatalf("Store: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatal("expected refresh to have fired at least once")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.AccessToken != "a" {
		t.Fatalf("expected prior token to survive a failed refresh, got %+v", got)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore(NewMemoryStorage(), time.Minute, nil, nil)
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Store(ctx, TokenData{AccessToken: "a", TokenType: "Bearer"})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.Load(ctx)
		}()
	}
	wg.Wait()
}

type testError string

func (e testError) Error() string { return string(e) }

const errTestRefreshFailed = testError("refresh failed")
