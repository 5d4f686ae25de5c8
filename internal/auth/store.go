package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const refreshTimeout = 15 * time.Second

// Refresher exchanges the refresh credential for a new access credential
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Store owns the short-lived access credential shared by the stream and
// the REST client. Only the Store mutates it.
type Store struct {
	mu        sync.Mutex
	token     string
	hydrated  bool // storage already consulted; Set, Clear and Reload keep it current
	storage   Storage
	refresher Refresher
	group     singleflight.Group
}

// NewStore creates a store mirroring the credential into storage
func NewStore(storage Storage, refresher Refresher) *Store {
	if storage == nil {
		storage = &MemoryStorage{}
	}
	return &Store{
		storage:   storage,
		refresher: refresher,
	}
}

// Get returns the access credential, hydrating it from storage on first use.
// A failed or empty hydration is remembered until Set, Clear or Reload.
// It never touches the network.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hydrated {
		s.hydrated = true
		token, err := s.storage.Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read stored access token")
			return ""
		}
		s.token = token
	}
	return s.token
}

// Set stores token in memory and durably. The in-memory copy is updated
// even when the durable write fails.
func (s *Store) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.hydrated = true
	return s.storage.Save(token)
}

// Clear removes the in-memory and durable copies
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.hydrated = true
	return s.storage.Delete()
}

// Refresh obtains a new access credential. Overlapping callers share one
// exchange, since the server side refresh credential is single use. A caller
// whose ctx ends stops waiting; the shared exchange still completes.
// On failure the stale access credential is cleared.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	if s.refresher == nil {
		return "", ErrNoRefreshToken
	}

	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		token, err := s.refresher.Refresh(rctx)
		if err != nil {
			if cerr := s.Clear(); cerr != nil {
				log.Warn().Err(cerr).Msg("Failed to clear stale access token")
			}
			return "", err
		}
		if err := s.Set(token); err != nil {
			log.Warn().Err(err).Msg("Failed to persist refreshed access token")
		}
		log.Debug().Msg("Access token refreshed")
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
