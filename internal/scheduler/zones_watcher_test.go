package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcherForFile(t *testing.T, contents string) *ZonesWatcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.json")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	}

	w, err := NewZonesWatcher(path, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })
	return w
}

func TestReadZones(t *testing.T) {
	w := newWatcherForFile(t, `{"zones": ["WAZ558", "MDC031"]}`)

	zones, err := w.readZones()
	require.NoError(t, err)
	assert.Equal(t, []string{"WAZ558", "MDC031"}, zones)
}

func TestReadZonesMissingFileIsEmpty(t *testing.T) {
	w := newWatcherForFile(t, "")

	zones, err := w.readZones()
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestReadZonesMalformed(t *testing.T) {
	w := newWatcherForFile(t, `{"zones": "not-a-list"`)

	_, err := w.readZones()
	assert.Error(t, err)
}

func TestShouldProcessFiltersByPathAndOp(t *testing.T) {
	w := newWatcherForFile(t, `{"zones": []}`)

	assert.True(t, w.shouldProcess(fsnotify.Event{Name: w.path, Op: fsnotify.Write}))
	assert.True(t, w.shouldProcess(fsnotify.Event{Name: w.path, Op: fsnotify.Create}))
	assert.False(t, w.shouldProcess(fsnotify.Event{Name: w.path, Op: fsnotify.Chmod}))
	assert.False(t, w.shouldProcess(fsnotify.Event{Name: filepath.Join(filepath.Dir(w.path), "other.json"), Op: fsnotify.Write}))
}

func TestNewCronTriggerRejectsBadSchedule(t *testing.T) {
	_, err := NewCronTrigger("not a schedule", nil, nil)
	assert.Error(t, err)
}

func TestNewCronTriggerAcceptsEverySyntax(t *testing.T) {
	trigger, err := NewCronTrigger("@every 15m", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, trigger)
}
