// Package ws pushes panel, toolbar and scroll updates to control surfaces
// over WebSocket and accepts their scroll input.
//
// Message Types (Client → Server):
//   - scroll: move the panel strip by delta pixels
//   - get-panels: request the panel payload
//   - ping: keep-alive ping
//
// Message Types (Server → Client):
//   - panel-info, toolbar-info: panel payload in layout order
//   - scroll-state: result of the last layout pass
//   - broadcast-result: per-panel outcome of a broadcast
//   - pong, error
//
// Example Usage:
//
//	hub := ws.NewHub(nil, ws.WithLogger(log))
//	router.GET("/ws", hub.HandleConnection)
package ws
