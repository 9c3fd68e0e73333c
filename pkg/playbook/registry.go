package playbook

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pipelineguard/remediator/pkg/shared/errors"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Registry is the process-wide, read-only catalog the executor consults for
// a playbook config. It is safe for concurrent use; a hot-reloaded catalog
// is swapped in atomically, and in-flight executions keep whatever Config
// value they already read.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Config
	log     *logrus.Entry
}

// NewRegistry builds a registry seeded from the built-in catalog.
func NewRegistry(log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		entries: cloneCatalog(defaultCatalog),
		log:     log,
	}
}

func cloneCatalog(src map[string]Config) map[string]Config {
	dst := make(map[string]Config, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Get returns the Config registered for errorType and whether it exists.
func (r *Registry) Get(errorType string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entries[errorType]
	return cfg, ok
}

// List returns the registered error_type keys.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// replace swaps the whole catalog atomically.
func (r *Registry) replace(entries map[string]Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
}

// fileCatalog is the on-disk shape for a hot-reloaded playbook file: a list
// rather than a map, so the error_type lives alongside its config and the
// file reads naturally top to bottom.
type fileCatalog struct {
	Playbooks []Config `yaml:"playbooks"`
}

func loadCatalogFile(path string) (map[string]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FailedToWithDetails("read", "playbook_registry", path, err)
	}
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.FailedToWithDetails("parse", "playbook_registry", path, err)
	}
	entries := make(map[string]Config, len(fc.Playbooks))
	for _, cfg := range fc.Playbooks {
		entries[cfg.ErrorType] = cfg
	}
	return entries, nil
}

// WatchFile loads path immediately and then watches it for changes,
// reloading the registry's catalog atomically on every write. A malformed
// file on reload is logged and ignored; the previously loaded catalog stays
// live. The returned stop function closes the underlying fsnotify watcher.
func (r *Registry) WatchFile(path string) (stop func(), err error) {
	entries, err := loadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	r.replace(entries)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.FailedTo("create playbook file watcher", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, errors.FailedToWithDetails("watch", "playbook_registry", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := loadCatalogFile(path)
				if err != nil {
					r.log.WithFields(logging.NewFields().Component("playbook_registry").Error(err).ToLogrus()).
						Warn("playbook catalog reload failed, keeping previous catalog")
					continue
				}
				r.replace(reloaded)
				r.log.WithFields(logging.NewFields().Component("playbook_registry").Count(len(reloaded)).ToLogrus()).
					Info("playbook catalog reloaded")
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.log.WithError(watchErr).Warn("playbook file watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
