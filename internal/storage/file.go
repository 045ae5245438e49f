package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const fileExt = ".json"

// How long after our own write we keep ignoring watcher events for a
// key. Editors and some filesystems deliver several events per write.
const selfWriteWindow = 500 * time.Millisecond

// FileStore is a KV implementation with one JSON file per key under a
// state directory. It is the default backend for a single-user agent.
//
// The store watches its directory and invokes the configured change
// callback when another process modifies a key, the same role the
// browser "storage" event played for cross-tab refresh in the web
// client. The store's own writes are suppressed from callbacks.
type FileStore struct {
	dir      string
	logger   zerolog.Logger
	onChange func(key string)

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu         sync.Mutex
	selfWrites map[string]time.Time
}

// FileStoreConfig holds configuration for a FileStore.
type FileStoreConfig struct {
	// Dir is the state directory. Created if missing.
	Dir string

	// OnChange, if set, is invoked with the key name whenever a key's
	// file is changed by another process.
	OnChange func(key string)

	// Logger for watcher diagnostics.
	Logger zerolog.Logger
}

// NewFileStore opens (creating if necessary) a file-backed store.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("storage: state directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &FileStore{
		dir:        cfg.Dir,
		logger:     cfg.Logger,
		onChange:   cfg.OnChange,
		selfWrites: make(map[string]time.Time),
	}

	if cfg.OnChange != nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := watcher.Add(cfg.Dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching state directory: %w", err)
		}
		s.watcher = watcher
		s.done = make(chan struct{})
		go s.watch()
	}

	return s, nil
}

// Get returns the stored value and whether the key exists.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return raw, true, nil
}

// Set stores value under key. The write goes through a temp file and
// rename so watchers never observe a torn value.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.markSelfWrite(key)

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.markSelfWrite(key)
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys with the given prefix.
func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing state directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		key, ok := keyFromFile(e.Name())
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close stops the watcher.
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	return err
}

func (s *FileStore) watch() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, fileExt) {
				continue
			}
			key, ok := keyFromFile(name)
			if !ok || s.isSelfWrite(key) {
				continue
			}
			s.logger.Debug().Str("key", key).Str("op", ev.Op.String()).Msg("external store change")
			s.onChange(key)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("store watcher error")
		}
	}
}

func (s *FileStore) markSelfWrite(key string) {
	if s.watcher == nil {
		return
	}
	s.mu.Lock()
	s.selfWrites[key] = time.Now()
	s.mu.Unlock()
}

func (s *FileStore) isSelfWrite(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.selfWrites[key]
	if !ok {
		return false
	}
	if time.Since(at) > selfWriteWindow {
		delete(s.selfWrites, key)
		return false
	}
	return true
}

// path maps a key to its file. Keys contain ":" separators, so the file
// name is the escaped key; escaping is reversible for Keys().
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+fileExt)
}

func keyFromFile(name string) (string, bool) {
	key, err := url.QueryUnescape(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return key, true
}
