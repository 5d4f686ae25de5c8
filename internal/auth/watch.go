package auth

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Reload replaces the in-memory credential with whatever storage holds now
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.storage.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reload access token")
		// let the next Get try again
		s.hydrated = false
		return
	}
	s.hydrated = true
	if token != s.token {
		s.token = token
		log.Debug().Bool("present", token != "").Msg("Access token changed on disk")
	}
}

// Watch reloads the store whenever the credential file at path is
// rewritten or removed by another process, until ctx ends. The parent
// directory is watched since saves replace the file by rename.
func (s *Store) Watch(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					s.Reload()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Token file watcher error")
			}
		}
	}()
	return nil
}
