// Package registry keeps the live model set of every mounted bot and
// hot-swaps it when the model files on disk change. A bot is mounted
// against a directory of serialized models (one JSON file per trained
// language); a filesystem watcher reloads the whole set after a quiet
// period, so predictions always see either the old set or the new one,
// never a half-written mix.
package registry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/converso-ai/nlu-engine/internal/engine/model"
	"github.com/converso-ai/nlu-engine/internal/engine/prediction"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

const defaultDebounce = 2 * time.Second

// entry is one mounted bot. The set is swapped wholesale under mu; the
// watcher and timer are owned by the entry's reload goroutine.
type entry struct {
	botID string
	dir   string

	mu  sync.RWMutex
	set prediction.ModelSet

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func (e *entry) current() prediction.ModelSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.set
}

func (e *entry) swap(set prediction.ModelSet) {
	e.mu.Lock()
	e.set = set
	e.mu.Unlock()
}

// Registry maps bot identifiers to their mounted model sets.
type Registry struct {
	debounce        time.Duration
	defaultLanguage string
	logger          logging.Logger

	mu   sync.Mutex
	bots map[string]*entry
}

// NewRegistry builds an empty registry. debounce is the quiet period
// after the last filesystem event before a bot's models are reloaded;
// zero or negative picks a sane default.
func NewRegistry(debounce time.Duration, defaultLanguage string, logger logging.Logger) *Registry {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		debounce:        debounce,
		defaultLanguage: defaultLanguage,
		logger:          logger.Named("registry"),
		bots:            make(map[string]*entry),
	}
}

// Mount loads the bot's models from dir and starts watching the
// directory for changes. Mounting an already mounted bot fails;
// unmount first.
func (r *Registry) Mount(botID, dir string) error {
	if strings.TrimSpace(botID) == "" {
		return errors.New(errors.ErrCodeValidation, "bot id is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeNotFound, "model directory %q is not accessible", dir)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrCodeValidation, "model path %q is not a directory", dir)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[botID]; ok {
		return errors.Newf(errors.ErrCodeConflict, "bot %q is already mounted", botID)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create filesystem watcher")
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, errors.ErrCodeInternal, "failed to watch %q", dir)
	}

	e := &entry{
		botID:   botID,
		dir:     dir,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	e.swap(r.loadSet(botID, dir))
	r.bots[botID] = e

	go r.watch(e)

	r.logger.Info("bot mounted",
		logging.String("bot_id", botID),
		logging.String("dir", dir),
		logging.Int("languages", len(e.current().Models)))
	return nil
}

// Unmount stops the bot's watcher and forgets its models.
func (r *Registry) Unmount(botID string) error {
	r.mu.Lock()
	e, ok := r.bots[botID]
	if ok {
		delete(r.bots, botID)
	}
	r.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrCodeNotFound, "bot %q is not mounted", botID)
	}

	close(e.done)
	_ = e.watcher.Close()
	r.logger.Info("bot unmounted", logging.String("bot_id", botID))
	return nil
}

// Get returns the bot's current model set.
func (r *Registry) Get(botID string) (prediction.ModelSet, bool) {
	r.mu.Lock()
	e, ok := r.bots[botID]
	r.mu.Unlock()
	if !ok {
		return prediction.ModelSet{}, false
	}
	return e.current(), true
}

// Bots lists the mounted bot identifiers.
func (r *Registry) Bots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bots))
	for id := range r.bots {
		out = append(out, id)
	}
	return out
}

// Close unmounts every bot.
func (r *Registry) Close() {
	r.mu.Lock()
	bots := r.bots
	r.bots = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range bots {
		close(e.done)
		_ = e.watcher.Close()
	}
}

// watch debounces filesystem events and reloads the bot's model set
// once the directory has been quiet for the configured period.
func (r *Registry) watch(e *entry) {
	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-e.done:
			timer.Stop()
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			timer.Reset(r.debounce)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watcher error",
				logging.String("bot_id", e.botID),
				logging.Err(err))
		case <-timer.C:
			set := r.loadSet(e.botID, e.dir)
			e.swap(set)
			r.logger.Info("models reloaded",
				logging.String("bot_id", e.botID),
				logging.Int("languages", len(set.Models)))
		}
	}
}

// relevant filters watcher noise down to mutations of model files.
func relevant(ev fsnotify.Event) bool {
	if filepath.Ext(ev.Name) != ".json" {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// loadSet reads every model file in dir. Unreadable or stale files are
// skipped with a warning; when two files carry the same language the
// most recently finished cycle wins.
func (r *Registry) loadSet(botID, dir string) prediction.ModelSet {
	set := prediction.ModelSet{
		DefaultLanguage: r.defaultLanguage,
		Models:          make(map[string]*model.Model),
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Warn("failed to read model directory",
			logging.String("bot_id", botID),
			logging.String("dir", dir),
			logging.Err(err))
		return set
	}

	for _, de := range names {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, de.Name())
		blob, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("failed to read model file",
				logging.String("path", path), logging.Err(err))
			continue
		}
		m, err := model.Unmarshal(blob)
		if err != nil {
			r.logger.Warn("skipping malformed model file",
				logging.String("path", path), logging.Err(err))
			continue
		}
		if m.Language == "" {
			r.logger.Warn("skipping model without a language",
				logging.String("path", path))
			continue
		}
		if prev, ok := set.Models[m.Language]; ok && prev.FinishedAt.After(m.FinishedAt) {
			continue
		}
		set.Models[m.Language] = m
	}
	return set
}
