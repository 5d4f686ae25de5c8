package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreReload(t *testing.T) {
	storage := &MemoryStorage{}
	s := NewStore(storage, nil)
	s.Set("first")

	storage.Save("second")
	s.Reload()
	if got := s.Get(); got != "second" {
		t.Fatalf("expected reloaded token, got %q", got)
	}
}

func waitForToken(t *testing.T, s *Store, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Get() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("token never became %q, last %q", want, s.Get())
}

func TestStoreWatchPicksUpOtherWriters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "state", "access-token")
	s := NewStore(NewFileStorage(path), nil)
	if err := s.Watch(ctx, path); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// a login from another process
	other := NewFileStorage(path)
	if err := other.Save("from-login"); err != nil {
		t.Fatal(err)
	}
	waitForToken(t, s, "from-login")

	if err := other.Delete(); err != nil {
		t.Fatal(err)
	}
	waitForToken(t, s, "")
}
