// Package config loads TabWall configuration.
//
// Host settings come from the environment (12-factor, envconfig) with
// defaults for every value. The panel file is user-editable and may be
// JSON, YAML or TOML; its format is chosen by extension.
//
// Configuration Sections:
//   - Server: command surface listener
//   - Browser: DevTools endpoint and per-operation timeouts
//   - Paths: panel file and snapshot file locations
//   - Layout: toolbar/scrollbar strip heights, default window size
//   - Broadcast: settle and file-attach timings
//   - Persistence: autosave interval
//   - Navigation: scheme default and host allow-list for typed URLs
//   - Logging, RateLimit
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	panels, err := config.LoadPanelFile(cfg.Paths.PanelFile)
//	if err != nil {
//	    log.Warn("using fallback panel config", zap.Error(err))
//	}
package config
