package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/cdp"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
)

func TestLoadPanelFile(t *testing.T) {
	dir := t.TempDir()

	f := LoadPanelFile(filepath.Join(dir, "missing.json"), nil)
	assert.Equal(t, config.DefaultPanelFile().Panels, f.Panels)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	f = LoadPanelFile(corrupt, nil)
	assert.Empty(t, f.Panels)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("panels:\n  - id: a\n    url: https://a/\n  - id: a\n    url: https://b/\n"), 0o644))
	f = LoadPanelFile(dup, nil)
	assert.Empty(t, f.Panels, "duplicate ids fall back to the minimal set")

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("panelWidth = 600\n\n[[panels]]\nid = \"a\"\nlabel = \"A\"\nurl = \"https://a/\"\n"), 0o644))
	f = LoadPanelFile(good, nil)
	assert.Equal(t, 600, f.PanelWidth)
	require.Len(t, f.Panels, 1)
	assert.Equal(t, "a", f.Panels[0].ID)
}

func TestLoadSnapshotFallsBack(t *testing.T) {
	dir := t.TempDir()

	snap := LoadSnapshot(filepath.Join(dir, "none.json"), nil)
	assert.NotNil(t, snap.EnabledPanels)
	assert.Nil(t, snap.WindowBounds)

	bad := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(bad, []byte("]]"), 0o644))
	snap = LoadSnapshot(bad, nil)
	assert.Empty(t, snap.PanelURLs)
}

func TestBroadcastConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Broadcast.SettleDelay = 300 * time.Millisecond
	cfg.Broadcast.AttachRetryDelay = time.Second
	cfg.Broadcast.MaxConcurrency = 0
	cfg.Browser.SurfaceTimeout = 3 * time.Second

	d := BroadcastConfig(cfg)
	assert.Equal(t, 300*time.Millisecond, d.SettleDelay)
	assert.Equal(t, time.Second, d.Attach.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, d.Attach.Settle)
	assert.Equal(t, 1600*time.Millisecond, d.PostAttachDelay)
	assert.Equal(t, 3*time.Second, d.SurfaceTimeout)
	assert.Equal(t, 8, d.MaxConcurrency)
}

func TestRequestRestartEndsRun(t *testing.T) {
	a := &App{}
	assert.Error(t, a.requestRestart(), "nothing to stop before Run")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	require.NoError(t, a.requestRestart())
	assert.True(t, a.RestartRequested())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNewAllocatorNeedsBrowser(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateFile = filepath.Join(t.TempDir(), "state.json")
	cfg.Browser.ChromePath = filepath.Join(t.TempDir(), "chrome")

	alloc, shared, err := newAllocator(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, shared, "launch mode has no shared connection")
	assert.IsType(t, &cdp.Launcher{}, alloc)
	assert.DirExists(t, cfg.ProfileRoot())

	cfg.Browser.DevToolsURL = "http://127.0.0.1:1"
	cfg.Browser.DiscoveryTimeout = 200 * time.Millisecond
	_, _, err = newAllocator(context.Background(), cfg, nil, nil)
	assert.Error(t, err)
}
