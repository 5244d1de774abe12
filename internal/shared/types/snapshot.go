package types

// Snapshot is the persisted host state
type Snapshot struct {
	WindowBounds  *Bounds           `json:"windowBounds,omitempty"`
	EnabledPanels map[string]bool   `json:"enabledPanels"`
	PanelURLs     map[string]string `json:"panelUrls"`
	LastSaved     string            `json:"lastSaved,omitempty"`
}

// EmptySnapshot returns the defaults used when nothing could be loaded.
func EmptySnapshot() Snapshot {
	return Snapshot{
		EnabledPanels: map[string]bool{},
		PanelURLs:     map[string]string{},
	}
}

// Normalize fills nil maps so callers never need nil checks.
func (s *Snapshot) Normalize() {
	if s.EnabledPanels == nil {
		s.EnabledPanels = map[string]bool{}
	}
	if s.PanelURLs == nil {
		s.PanelURLs = map[string]string{}
	}
}
