package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "7600", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 40, cfg.Layout.ToolbarHeight)
	assert.Equal(t, 14, cfg.Layout.ScrollbarHeight)
	assert.Equal(t, 700*time.Millisecond, cfg.Broadcast.SettleDelay)
	assert.Equal(t, 2*time.Minute, cfg.Persistence.AutosaveInterval)
	assert.Equal(t, "https", cfg.Navigation.DefaultScheme)
	assert.NotEmpty(t, cfg.Paths.StateFile)
	assert.True(t, cfg.Browser.Launches(), "no endpoint means launched browsers")
}

func TestProfileRoot(t *testing.T) {
	cfg := Default()
	cfg.Paths.StateFile = filepath.Join("/var", "lib", "tabwall", "state.json")
	assert.Equal(t, filepath.Join("/var", "lib", "tabwall", "partitions"), cfg.ProfileRoot())

	cfg.Browser.ProfileDir = "/srv/profiles"
	assert.Equal(t, "/srv/profiles", cfg.ProfileRoot())
}

func TestLoadBrowserMode(t *testing.T) {
	t.Setenv("TABWALL_DEVTOOLS_URL", "http://127.0.0.1:9222")
	t.Setenv("TABWALL_CHROME_PATH", "/usr/bin/chromium")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Launches())
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ChromePath)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("TABWALL_PORT", "9000")
	t.Setenv("TABWALL_SETTLE_DELAY", "1s")
	t.Setenv("TABWALL_ALLOWED_HOSTS", "*.openai.com,claude.ai")
	t.Setenv("TABWALL_STATE_FILE", "/tmp/tabwall-state.json")
	t.Setenv("TABWALL_LOG_DEV", "true")
	t.Setenv("TABWALL_ALLOWED_ORIGINS", "https://dash.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Broadcast.SettleDelay)
	assert.Equal(t, []string{"*.openai.com", "claude.ai"}, cfg.Navigation.AllowedHosts)
	assert.Equal(t, "/tmp/tabwall-state.json", cfg.Paths.StateFile)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, []string{"https://dash.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("TABWALL_TOOLBAR_HEIGHT", "tall")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 40, cfg.Layout.ToolbarHeight)
}

func TestLoadPanelFileFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"panels.json": `{"panelWidth": 480, "panels": [{"id": "claude", "label": "Claude", "url": "https://claude.ai", "enabled": false}]}`,
		"panels.yaml": "panelWidth: 480\npanels:\n  - id: claude\n    label: Claude\n    url: https://claude.ai\n    enabled: false\n",
		"panels.toml": "panelWidth = 480\n\n[[panels]]\nid = \"claude\"\nlabel = \"Claude\"\nurl = \"https://claude.ai\"\nenabled = false\n",
	}

	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			f, err := LoadPanelFile(path)
			require.NoError(t, err)
			assert.Equal(t, 480, f.EffectivePanelWidth())
			assert.Equal(t, DefaultControlPanelWidth, f.EffectiveControlWidth())
			require.Len(t, f.Panels, 1)
			assert.Equal(t, "claude", f.Panels[0].ID)
			assert.False(t, f.Panels[0].IsEnabled())
		})
	}
}

func TestLoadPanelFileMissingSeedsDefaults(t *testing.T) {
	f, err := LoadPanelFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, f.Panels)
	assert.NoError(t, f.Validate())
}

func TestLoadPanelFileCorruptFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	f, err := LoadPanelFile(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigLoad))
	require.NotNil(t, f)
	assert.Empty(t, f.Panels)
	assert.Equal(t, 420, f.EffectivePanelWidth())
}

func TestValidateRejectsDuplicates(t *testing.T) {
	f := &PanelFile{Panels: []types.PanelConfig{
		{ID: "a", URL: "https://a.example"},
		{ID: "a", URL: "https://b.example"},
	}}
	assert.Error(t, f.Validate())

	f = &PanelFile{Panels: []types.PanelConfig{{ID: "a"}}}
	assert.Error(t, f.Validate())
}

func TestMerge(t *testing.T) {
	f := DefaultPanelFile()
	n := len(f.Panels)

	f.Merge(types.ConfigUpdate{PanelWidth: 600})
	assert.Equal(t, 600, f.PanelWidth)
	assert.Equal(t, DefaultControlPanelWidth, f.ControlPanelWidth)
	assert.Len(t, f.Panels, n)

	f.Merge(types.ConfigUpdate{Panels: []types.PanelConfig{{ID: "x", URL: "https://x.example"}}})
	require.Len(t, f.Panels, 1)
	assert.Equal(t, "x", f.Panels[0].ID)
}

func TestEncodeRoundTrip(t *testing.T) {
	for _, name := range []string{"c.json", "c.yaml", "c.toml"} {
		t.Run(name, func(t *testing.T) {
			in := DefaultPanelFile()
			data, err := EncodePanelFile(name, in)
			require.NoError(t, err)

			out, err := DecodePanelFile(name, data)
			require.NoError(t, err)
			assert.Equal(t, in.PanelWidth, out.PanelWidth)
			require.Len(t, out.Panels, len(in.Panels))
			for i := range in.Panels {
				assert.Equal(t, in.Panels[i].ID, out.Panels[i].ID)
				assert.Equal(t, in.Panels[i].URL, out.Panels[i].URL)
			}
		})
	}
}
