// ABOUTME: Directory-backed Preset registry with fsnotify hot-reload
// ABOUTME: Adapted from the teacher's view.go file watcher (debounced reload on fsnotify.Write)

package preset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"crateforge/internal/apperror"
	"crateforge/internal/xlog"
)

// reloadDebounce mirrors the teacher's "wait a bit for atomic writes to
// complete" pause before re-reading a changed file.
const reloadDebounce = 100 * time.Millisecond

// Registry holds the set of presets loaded from a directory, reloading the
// whole directory whenever a file in it is created, written, or removed.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Preset
	dir      string
	watcher  *fsnotify.Watcher
	logger   *xlog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry loads every `<name>.json` file under dir and starts watching
// dir for changes. dir is created if it doesn't already exist.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "creating presets directory %s", dir)
	}

	r := &Registry{
		byName: make(map[string]Preset),
		dir:    dir,
		logger: xlog.Default().With("preset"),
		stopCh: make(chan struct{}),
	}

	if err := r.loadAll(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "creating preset directory watcher")
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, apperror.Wrap(apperror.IOError, err, "watching presets directory %s", dir)
	}

	r.watcher = watcher
	go r.watchLoop()

	return r, nil
}

// Close stops the file watcher.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}

// Get returns the named preset, or NotFound if it hasn't been loaded.
func (r *Registry) Get(name string) (Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	if !ok {
		return Preset{}, apperror.NotFoundf("unknown preset: %s", name)
	}

	return p, nil
}

// List returns every loaded preset, sorted by name.
func (r *Registry) List() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Preset, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p)
	}

	sortPresetsByName(out)
	return out
}

func sortPresetsByName(ps []Preset) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Name < ps[j-1].Name; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

func (r *Registry) loadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return apperror.Wrap(apperror.IOError, err, "reading presets directory %s", r.dir)
	}

	loaded := make(map[string]Preset, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}

		p, err := r.loadFile(filepath.Join(r.dir, ent.Name()))
		if err != nil {
			r.logger.Warnf("skipping invalid preset file %s: %v", ent.Name(), err)
			continue
		}

		loaded[p.Name] = p
	}

	r.mu.Lock()
	r.byName = loaded
	r.mu.Unlock()

	return nil
}

func (r *Registry) loadFile(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, apperror.Wrap(apperror.IOError, err, "reading preset file %s", path)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, apperror.Wrap(apperror.InvalidArgument, err, "parsing preset file %s", path)
	}

	if err := p.Validate(); err != nil {
		return Preset{}, err
	}

	return p, nil
}

// watchLoop mirrors the teacher's waitForFileChange: debounce writes, reload
// the whole directory on any change, and keep watching through transient
// watcher errors.
func (r *Registry) watchLoop() {
	for {
		select {
		case <-r.stopCh:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(reloadDebounce)
				if err := r.loadAll(); err != nil {
					r.logger.Warnf("reload after %s failed: %v", event.Name, err)
				}
			}

			if event.Op&fsnotify.Remove != 0 {
				if err := r.loadAll(); err != nil {
					r.logger.Warnf("reload after removal of %s failed: %v", event.Name, err)
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}

			r.logger.Warnf("preset watcher error: %v", err)
		}
	}
}
