// Package types provides shared data structures for the TabWall backend.
//
// This package defines the types passed between the registry, the layout
// engine, the broadcast dispatcher, persistence and the command surface.
//
// Core Types:
//   - Panel, PanelConfig: one embedded destination and its configuration
//   - Bounds, Size, Placement: window geometry and placement commands
//   - ScrollState: derived horizontal scroll geometry
//   - TargetResult, BroadcastResult: per-target broadcast outcomes
//   - Snapshot: the persisted host state
//
// Request Types:
//   - BroadcastRequest, NavigateRequest, ToggleRequest, ConfigUpdate
//   - WSMessage: websocket push and scroll forwarding
//
// Errors:
//   - Sentinel errors for the failure taxonomy (ErrInputNotFound,
//     ErrInjection, ErrPanelNotFound, ...), matched with errors.Is
package types
