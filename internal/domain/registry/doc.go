// Package registry holds the ordered set of panels.
//
// The registry is an arena: records are keyed by a stable id and a
// separate sequence determines layout order. Reorder never drops a panel;
// ids the caller omits are appended in their previous relative order.
//
// Example Usage:
//
//	reg := registry.New()
//	reg.Register("claude", cfg, snapshot.PanelURLs["claude"])
//	reg.Reorder([]string{"gemini", "claude"})
//	for _, p := range reg.Enabled() { ... }
package registry
