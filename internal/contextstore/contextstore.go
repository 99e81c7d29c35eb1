// Package contextstore watches a directory of scope-content files and
// republishes every create/write/remove as a CustomMessage envelope on the
// message broker (C7), giving pkg/coordination's ModifyContext an
// external-edit notification path alongside its direct API calls. The
// fsnotify watch loop is adapted from the teacher's
// pkg/config/agent_config_manager.go, the one place the teacher already
// does hot-reload via fsnotify; content files are parsed with
// gopkg.in/yaml.v3, matching pkg/config's own parser choice.
package contextstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentfabric/coordinator/pkg/logger"
	"github.com/agentfabric/coordinator/pkg/messaging"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// scopeContentChanged is the CustomType tag on every envelope this package
// publishes, so subscribers can filter for scope-content notifications
// among other CustomMessage traffic on the broker.
const scopeContentChanged = "scope_content_changed"

// ScopeDocument is the on-disk shape of one scope's content file.
type ScopeDocument struct {
	ScopePath string            `yaml:"scope_path"`
	Content   map[string]string `yaml:"content"`
}

// Store watches a directory and publishes scope-content changes onto a
// broker as they happen on disk.
type Store struct {
	dir     string
	broker  *messaging.Broker
	watcher *fsnotify.Watcher
	logger  *logger.Logger

	mu    sync.RWMutex
	cache map[string]ScopeDocument

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Store watching dir and publishing changes onto broker.
// It does not start watching until Start is called.
func New(dir string, broker *messaging.Broker) (*Store, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		dir:     dir,
		broker:  broker,
		watcher: watcher,
		logger:  logger.GetLogger().WithPrefix("contextstore"),
		cache:   make(map[string]ScopeDocument),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start loads every existing scope document in the watched directory, then
// begins watching for changes in the background.
func (s *Store) Start() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isScopeFile(entry.Name()) {
			continue
		}
		if err := s.load(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Error("load %s: %v", entry.Name(), err)
		}
	}

	s.wg.Add(1)
	go s.watch()
	return nil
}

// Stop halts the watch loop and releases the fsnotify watcher.
func (s *Store) Stop() {
	s.cancel()
	_ = s.watcher.Close()
	s.wg.Wait()
}

// Get returns the cached document for scopePath, if one has been loaded.
func (s *Store) Get(scopePath string) (ScopeDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.cache[scopePath]
	return doc, ok
}

func (s *Store) watch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watch error: %v", err)
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if !isScopeFile(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if err := s.load(event.Name); err != nil {
			s.logger.Error("reload %s: %v", event.Name, err)
			return
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		s.forget(event.Name)
	}
}

func (s *Store) load(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is from a watched, operator-controlled directory
	if err != nil {
		return err
	}

	var doc ScopeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.ScopePath == "" {
		doc.ScopePath = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s.mu.Lock()
	s.cache[doc.ScopePath] = doc
	s.mu.Unlock()

	s.publish(doc.ScopePath, "updated")
	return nil
}

func (s *Store) forget(path string) {
	scopePath := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	s.mu.Lock()
	delete(s.cache, scopePath)
	s.mu.Unlock()

	s.publish(scopePath, "removed")
}

func (s *Store) publish(scopePath, action string) {
	if s.broker == nil {
		return
	}

	env := &messaging.Envelope{
		Type:       messaging.CustomMessage,
		CustomType: scopeContentChanged,
		Sender:     "contextstore",
		Payload: map[string]string{
			"scope_path": scopePath,
			"action":     action,
		},
	}
	if err := s.broker.Broadcast(env); err != nil {
		s.logger.Error("publish scope change for %s: %v", scopePath, err)
	}
}

func isScopeFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
