package layout

import (
	"math"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Ids of the auxiliary strips.
const (
	ToolbarID   = "toolbar"
	ScrollbarID = "scrollbar"
	SidebarID   = "sidebar"
)

// Offscreen is where hidden views are parked.
const Offscreen = -9999

// Geometry holds the fixed knobs of a pass.
type Geometry struct {
	PanelWidth      int
	SidebarWidth    int
	ToolbarHeight   int
	ScrollbarHeight int
}

// DefaultGeometry returns the stock sizes.
func DefaultGeometry() Geometry {
	return Geometry{
		PanelWidth:      500,
		SidebarWidth:    340,
		ToolbarHeight:   40,
		ScrollbarHeight: 14,
	}
}

func (g Geometry) normalized() Geometry {
	d := DefaultGeometry()
	if g.PanelWidth <= 0 {
		g.PanelWidth = d.PanelWidth
	}
	if g.SidebarWidth < 0 {
		g.SidebarWidth = 0
	}
	if g.ToolbarHeight < 0 {
		g.ToolbarHeight = 0
	}
	if g.ScrollbarHeight < 0 {
		g.ScrollbarHeight = 0
	}
	return g
}

// Input is everything one pass depends on.
type Input struct {
	Viewport types.Size
	Geometry Geometry
	Enabled  []string
	Disabled []string
	OffsetX  float64
}

// Plan is the output of a pass: the placements in emission order and the
// resulting scroll state.
type Plan struct {
	Placements []types.Placement
	State      types.ScrollState
}

// Bounds returns the placement for id.
func (p Plan) Bounds(id string) (types.Bounds, bool) {
	for _, pl := range p.Placements {
		if pl.ID == id {
			return pl.Bounds, true
		}
	}
	return types.Bounds{}, false
}

// Clamp confines an offset to [0, maxScroll].
func Clamp(offset float64, maxScroll int) float64 {
	if math.IsNaN(offset) || offset < 0 {
		return 0
	}
	if m := float64(maxScroll); offset > m {
		return m
	}
	return offset
}

// Compute runs one layout pass. It has no side effects.
func Compute(in Input) Plan {
	g := in.Geometry.normalized()
	vw, vh := in.Viewport.Width, in.Viewport.Height

	available := max(0, vw-g.SidebarWidth)
	enabled := len(in.Enabled)

	visible := max(1, available/g.PanelWidth)
	panelWidth := g.PanelWidth
	if enabled > 0 {
		panelWidth = available / min(visible, enabled)
	}
	total := enabled * panelWidth
	maxScroll := max(0, total-available)
	offset := Clamp(in.OffsetX, maxScroll)
	contentHeight := max(0, vh-g.ToolbarHeight-g.ScrollbarHeight)

	placements := make([]types.Placement, 0, enabled+len(in.Disabled)+3)
	placements = append(placements, types.Placement{
		ID:     ToolbarID,
		Bounds: types.Bounds{X: 0, Y: 0, Width: available, Height: g.ToolbarHeight},
	})

	for i, id := range in.Enabled {
		startX := float64(i*panelWidth) - offset
		b := types.Bounds{X: Offscreen, Y: Offscreen, Width: panelWidth, Height: contentHeight}
		if startX < float64(available) && startX+float64(panelWidth) > 0 {
			b.X = int(math.Round(startX))
			b.Y = g.ToolbarHeight
		}
		placements = append(placements, types.Placement{ID: id, Bounds: b})
	}

	for _, id := range in.Disabled {
		placements = append(placements, types.Placement{
			ID:     id,
			Bounds: types.Bounds{X: Offscreen, Y: Offscreen},
		})
	}

	placements = append(placements,
		types.Placement{
			ID:     ScrollbarID,
			Bounds: types.Bounds{X: 0, Y: vh - g.ScrollbarHeight, Width: available, Height: g.ScrollbarHeight},
		},
		types.Placement{
			ID:     SidebarID,
			Bounds: types.Bounds{X: available, Y: 0, Width: g.SidebarWidth, Height: vh},
		},
	)

	return Plan{
		Placements: placements,
		State: types.ScrollState{
			OffsetX:           offset,
			MaxScroll:         maxScroll,
			ActualPanelWidth:  panelWidth,
			AvailableWidth:    available,
			TotalContentWidth: total,
			TotalEnabled:      enabled,
		},
	}
}
