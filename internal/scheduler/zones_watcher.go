package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"

	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/dmrolfs/weatherzone/pkg/utils"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadBatchSize is the chunk size utils.BatchProcess splits a reload's
// Monitor/Forget commands into: each chunk runs on its own goroutine and
// issues its commands one after another, so a config file naming hundreds of
// zones spawns one goroutine per ten zones rather than one per zone.
const reloadBatchSize = 10

// zonesConfig is the loosely-typed shape of the zones config file: a flat
// JSON object with a "zones" list of zone codes.
type zonesConfig struct {
	Zones []string `mapstructure:"zones"`
}

// ZonesWatcher hot-reloads the monitored zone set from a JSON config file:
// on every write it diffs the file's zone list against the Registrar's
// current codes and issues MonitorForecastZone/ForgetForecastZone for the
// delta.
type ZonesWatcher struct {
	path      string
	watcher   *fsnotify.Watcher
	registrar *events.Runtime[registrar.State, registrar.Command, registrar.Event]
	log       *zap.Logger
	debounce  time.Duration
}

// NewZonesWatcher constructs a watcher on path's containing directory (the
// file itself may not exist yet at startup; most editors replace rather
// than write-in-place, which fsnotify only sees on the directory).
func NewZonesWatcher(path string, registrarRuntime *events.Runtime[registrar.State, registrar.Command, registrar.Event], log *zap.Logger) (*ZonesWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &ZonesWatcher{path: path, watcher: w, registrar: registrarRuntime, log: log, debounce: 500 * time.Millisecond}, nil
}

// LoadInitial applies the zones file's contents once at startup, before the
// watch loop begins.
func (w *ZonesWatcher) LoadInitial(ctx context.Context) {
	w.reload(ctx)
}

// Run processes file-change events until ctx is cancelled.
func (w *ZonesWatcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldProcess(event) {
				debounceTimer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("zones watcher error", zap.Error(err))

		case <-debounceTimer.C:
			w.reload(ctx)

		case <-ctx.Done():
			return
		}
	}
}

func (w *ZonesWatcher) shouldProcess(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *ZonesWatcher) reload(ctx context.Context) {
	desired, err := w.readZones()
	if err != nil {
		w.log.Warn("zones config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	state, err := w.registrar.Load(ctx, registrar.SingletonID)
	if err != nil {
		w.log.Warn("zones reload: failed to load registrar state", zap.Error(err))
		return
	}
	current := state.Codes()

	desiredSet := make(map[string]struct{}, len(desired))
	for _, code := range desired {
		desiredSet[code] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, code := range current {
		currentSet[code] = struct{}{}
	}

	var toMonitor, toForget []string
	for code := range desiredSet {
		if _, ok := currentSet[code]; !ok {
			toMonitor = append(toMonitor, code)
		}
	}
	for code := range currentSet {
		if _, ok := desiredSet[code]; !ok {
			toForget = append(toForget, code)
		}
	}

	utils.BatchProcess(toMonitor, reloadBatchSize, func(batch []string) {
		for _, code := range batch {
			if _, err := w.registrar.Execute(ctx, registrar.SingletonID, registrar.MonitorForecastZone(code)); err != nil {
				w.log.Warn("zones reload: monitor failed", zap.String("zone", code), zap.Error(err))
			}
		}
	})
	utils.BatchProcess(toForget, reloadBatchSize, func(batch []string) {
		for _, code := range batch {
			if _, err := w.registrar.Execute(ctx, registrar.SingletonID, registrar.ForgetForecastZone(code)); err != nil {
				w.log.Warn("zones reload: forget failed", zap.String("zone", code), zap.Error(err))
			}
		}
	})
}

func (w *ZonesWatcher) readZones() ([]string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw map[string]interface{}
	if err := jsoniter.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var cfg zonesConfig
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg.Zones, nil
}
