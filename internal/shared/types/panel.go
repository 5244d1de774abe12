package types

// PanelConfig is one entry of the panel file.
type PanelConfig struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	Label   string `json:"label" yaml:"label" toml:"label"`
	URL     string `json:"url" yaml:"url" toml:"url"`
	Color   string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
}

// IsEnabled reports the configured flag, defaulting to true when unset.
func (c PanelConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// Panel is the registry record for one embedded destination
type Panel struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
	CurrentURL string `json:"currentUrl"`
}

// PanelInfo is the payload pushed to control surfaces
type PanelInfo struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	URL        string `json:"url"`
	Color      string `json:"color"`
	Enabled    bool   `json:"enabled"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
