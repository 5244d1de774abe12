package types

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds is a rectangle in window content coordinates
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Placement is a single view placement command
type Placement struct {
	ID     string `json:"id"`
	Bounds Bounds `json:"bounds"`
}

// ScrollState describes the horizontal strip after a layout pass
type ScrollState struct {
	OffsetX           float64 `json:"scrollOffsetX"`
	MaxScroll         int     `json:"maxScroll"`
	ActualPanelWidth  int     `json:"actualPanelWidth"`
	AvailableWidth    int     `json:"availableWidth"`
	TotalContentWidth int     `json:"totalContentWidth"`
	TotalEnabled      int     `json:"totalEnabled"`
}
