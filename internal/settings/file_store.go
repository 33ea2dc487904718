package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

const defaultReloadDebounce = 500 * time.Millisecond

// FileStore keeps settings in a flat JSON object on disk and reloads it when
// the file is edited externally.
type FileStore struct {
	path     string
	debounce time.Duration
	log      *slog.Logger

	mu    sync.RWMutex
	data  map[string]Setting
	timer *time.Timer

	subMu  sync.Mutex
	subs   map[int]func()
	nextID int

	fw   *fsnotify.Watcher
	stop chan struct{}
	done chan struct{}
}

// OpenFileStore loads path (a missing file is an empty store) and starts
// watching its directory.
func OpenFileStore(path string, log *slog.Logger) (*FileStore, error) {
	return openFileStore(path, defaultReloadDebounce, log)
}

func openFileStore(path string, debounce time.Duration, log *slog.Logger) (*FileStore, error) {
	path = filepath.Clean(path)
	f := &FileStore{
		path:     path,
		debounce: debounce,
		log:      logger.Component(log, "settings-file"),
		data:     make(map[string]Setting),
		subs:     make(map[int]func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := f.read()
	if err != nil {
		return nil, err
	}
	f.data = data

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	f.fw = fw
	go f.eventLoop()
	f.log.Info("settings file loaded", "path", path, "keys", len(data))
	return f, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.data[key]
	return s.Value, ok, nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := f.write(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) All(_ context.Context) ([]Setting, error) {
	f.mu.RLock()
	out := make([]Setting, 0, len(f.data))
	for _, s := range f.data {
		out = append(out, s)
	}
	f.mu.RUnlock()
	sortSettings(out)
	return out, nil
}

// Watch registers fn to run after each external reload.
func (f *FileStore) Watch(fn func()) func() {
	f.subMu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.subMu.Unlock()
	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

func (f *FileStore) Close() error {
	select {
	case <-f.stop:
		return nil
	default:
	}
	close(f.stop)
	err := f.fw.Close()
	<-f.done
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	return err
}

// ──────────────────── Disk ────────────────────

func (f *FileStore) read() (map[string]Setting, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Setting), nil
	}
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.path, err)
		}
	}
	mod := time.Now()
	if info, err := os.Stat(f.path); err == nil {
		mod = info.ModTime()
	}
	data := make(map[string]Setting, len(values))
	for k, v := range values {
		data[k] = Setting{Key: k, Value: v, UpdatedAt: mod}
	}
	return data, nil
}

// write persists f.data atomically. Callers hold f.mu.
func (f *FileStore) write() error {
	values := make(map[string]string, len(f.data))
	for k, s := range f.data {
		values[k] = s.Value
	}
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// ──────────────────── Reload ────────────────────

func (f *FileStore) eventLoop() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case ev, ok := <-f.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.schedule()
		case err, ok := <-f.fw.Errors:
			if !ok {
				return
			}
			f.log.Warn("watch error", "error", err)
		}
	}
}

func (f *FileStore) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, f.reload)
}

func (f *FileStore) reload() {
	data, err := f.read()
	if err != nil {
		f.log.Warn("reload failed, keeping previous settings", "error", err)
		return
	}
	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	f.log.Debug("settings file reloaded", "keys", len(data))

	f.subMu.Lock()
	fns := make([]func(), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
