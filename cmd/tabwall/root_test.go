package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "tabwall dev\n", out.String())
}

func TestServeFlags(t *testing.T) {
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"port", "devtools", "chrome", "profiles", "headless", "panels", "state", "dev", "no-watch"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}
}

func TestServeOptionsOverrideEnvironment(t *testing.T) {
	cfg := config.Default()
	opts := &serveOptions{port: "9000", panelFile: "panels.yaml", chrome: "/opt/chrome", development: true, noWatch: true}
	opts.apply(cfg)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "panels.yaml", cfg.Paths.PanelFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.Paths.WatchFile)
	assert.Equal(t, "/opt/chrome", cfg.Browser.ChromePath)
	assert.Empty(t, cfg.Browser.DevToolsURL)
	assert.True(t, cfg.Browser.Launches())
}

func TestVersionTemplateWithCommit(t *testing.T) {
	orig := commit
	defer func() { commit = orig }()
	commit = "abc123"
	assert.Contains(t, versionTemplate(), "commit: abc123")
}
