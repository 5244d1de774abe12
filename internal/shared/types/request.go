package types

// BroadcastRequest sends one prompt to several panels
type BroadcastRequest struct {
	Prompt   string   `json:"prompt" binding:"required"`
	PanelIDs []string `json:"panelIds" binding:"required,min=1"`
	FilePath string   `json:"filePath,omitempty"`
}

// NavigateRequest loads a url in a panel
type NavigateRequest struct {
	URL string `json:"url" binding:"required"`
}

// ToggleRequest enables or disables a panel
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// ScrollRequest moves the panel strip by a pixel delta
type ScrollRequest struct {
	Delta float64 `json:"delta"`
}

// FractionRequest jumps the panel strip to a fraction of its range
type FractionRequest struct {
	Fraction float64 `json:"fraction"`
}

// ResizeRequest reports a new window content size
type ResizeRequest struct {
	Width  int `json:"width" binding:"required,gt=0"`
	Height int `json:"height" binding:"required,gt=0"`
}

// ConfigUpdate is a partial panel-file update. Zero knobs are left alone,
// a nil panel list keeps the current order.
type ConfigUpdate struct {
	PanelWidth        int           `json:"panelWidth,omitempty"`
	ControlPanelWidth int           `json:"controlPanelWidth,omitempty"`
	Panels            []PanelConfig `json:"panels,omitempty"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Delta   float64     `json:"delta,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event names pushed to observers
const (
	EventPanelInfo   = "panel-info"
	EventToolbarInfo = "toolbar-info"
	EventScrollState = "scroll-state"
	EventBroadcast   = "broadcast-result"
	EventPlacement   = "placement"
)
