package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPanelWidth        = 500
	DefaultControlPanelWidth = 340
)

// PanelFile is the user-editable panel configuration. It is decoded by
// file extension: .json, .yaml/.yml or .toml.
type PanelFile struct {
	PanelWidth        int                  `json:"panelWidth" yaml:"panelWidth" toml:"panelWidth"`
	ControlPanelWidth int                  `json:"controlPanelWidth" yaml:"controlPanelWidth" toml:"controlPanelWidth"`
	Panels            []types.PanelConfig  `json:"panels" yaml:"panels" toml:"panels"`
	Strategies        []types.StrategySpec `json:"strategies,omitempty" yaml:"strategies,omitempty" toml:"strategies,omitempty"`
}

// EffectivePanelWidth returns the nominal panel width used by layout.
func (f *PanelFile) EffectivePanelWidth() int {
	if f.PanelWidth <= 0 {
		return DefaultPanelWidth
	}
	return f.PanelWidth
}

// EffectiveControlWidth returns the sidebar width used by layout.
func (f *PanelFile) EffectiveControlWidth() int {
	if f.ControlPanelWidth <= 0 {
		return DefaultControlPanelWidth
	}
	return f.ControlPanelWidth
}

// Validate checks panel ids are present and unique.
func (f *PanelFile) Validate() error {
	seen := make(map[string]struct{}, len(f.Panels))
	for i, p := range f.Panels {
		if p.ID == "" {
			return fmt.Errorf("panel %d: id is required", i)
		}
		if p.URL == "" {
			return fmt.Errorf("panel %s: url is required", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("panel %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (f *PanelFile) Clone() *PanelFile {
	out := *f
	out.Panels = append([]types.PanelConfig(nil), f.Panels...)
	out.Strategies = append([]types.StrategySpec(nil), f.Strategies...)
	return &out
}

// Merge applies a partial update. Zero knobs are left alone; a non-nil
// panel list replaces the stored one.
func (f *PanelFile) Merge(update types.ConfigUpdate) {
	if update.PanelWidth > 0 {
		f.PanelWidth = update.PanelWidth
	}
	if update.ControlPanelWidth > 0 {
		f.ControlPanelWidth = update.ControlPanelWidth
	}
	if update.Panels != nil {
		f.Panels = append([]types.PanelConfig(nil), update.Panels...)
	}
}

// DecodePanelFile parses data according to the extension of path.
func DecodePanelFile(path string, data []byte) (*PanelFile, error) {
	var f PanelFile
	var err error
	switch format(path) {
	case "yaml":
		err = yaml.Unmarshal(data, &f)
	case "toml":
		err = toml.Unmarshal(data, &f)
	default:
		err = sonic.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", types.ErrConfigLoad, path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigLoad, err)
	}
	return &f, nil
}

// EncodePanelFile renders f in the format implied by path.
func EncodePanelFile(path string, f *PanelFile) ([]byte, error) {
	switch format(path) {
	case "yaml":
		return yaml.Marshal(f)
	case "toml":
		return toml.Marshal(f)
	default:
		return sonic.ConfigStd.MarshalIndent(f, "", "  ")
	}
}

// LoadPanelFile reads the panel file. A missing file yields the built-in
// panel set; any other failure yields an empty, usable configuration and
// the error describing why, so startup can log it and continue.
func LoadPanelFile(path string) (*PanelFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPanelFile(), nil
	}
	if err != nil {
		return MinimalPanelFile(), fmt.Errorf("%w: %v", types.ErrConfigLoad, err)
	}
	f, err := DecodePanelFile(path, data)
	if err != nil {
		return MinimalPanelFile(), err
	}
	return f, nil
}

// MinimalPanelFile is the safe fallback for an unreadable panel file.
func MinimalPanelFile() *PanelFile {
	return &PanelFile{
		PanelWidth:        420,
		ControlPanelWidth: DefaultControlPanelWidth,
		Panels:            []types.PanelConfig{},
	}
}

// DefaultPanelFile is written on first run.
func DefaultPanelFile() *PanelFile {
	panel := func(id, label, url, color string) types.PanelConfig {
		return types.PanelConfig{ID: id, Label: label, URL: url, Color: color, Enabled: types.BoolPtr(true)}
	}
	return &PanelFile{
		PanelWidth:        DefaultPanelWidth,
		ControlPanelWidth: DefaultControlPanelWidth,
		Panels: []types.PanelConfig{
			panel("chatgpt", "ChatGPT", "https://chatgpt.com/", "#10a37f"),
			panel("gemini", "Gemini", "https://gemini.google.com/app", "#4285f4"),
			panel("claude", "Claude", "https://claude.ai/new", "#d97757"),
			panel("deepseek", "DeepSeek", "https://chat.deepseek.com/", "#4d6bfe"),
			panel("perplexity", "Perplexity", "https://www.perplexity.ai/", "#20808d"),
			panel("copilot", "Copilot", "https://copilot.microsoft.com/", "#0078d4"),
			panel("mistral", "Le Chat", "https://chat.mistral.ai/chat", "#fa520f"),
			panel("grok", "Grok", "https://grok.com/", "#a0a0a0"),
		},
	}
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}
