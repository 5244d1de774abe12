package host

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

var (
	textPolicy = bluemonday.StrictPolicy()
	colorRe    = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20})$`)
)

// Payload renders panels for control surfaces. Labels come from a
// user-edited file and end up in markup, so tags are stripped and
// entities escaped. Colors that are not hex or named are dropped.
func Payload(panels []types.Panel) []types.PanelInfo {
	out := make([]types.PanelInfo, 0, len(panels))
	for _, p := range panels {
		color := p.Color
		if !colorRe.MatchString(color) {
			color = ""
		}
		out = append(out, types.PanelInfo{
			ID:         p.ID,
			Label:      textPolicy.Sanitize(p.Label),
			URL:        p.URL,
			Color:      color,
			Enabled:    p.Enabled,
			CurrentURL: p.CurrentURL,
		})
	}
	return out
}
