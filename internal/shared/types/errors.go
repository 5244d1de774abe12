package types

import "errors"

// Failure taxonomy. Callers wrap these with fmt.Errorf("...: %w") and
// match with errors.Is.
var (
	ErrConfigLoad       = errors.New("config load failed")
	ErrStateLoad        = errors.New("state load failed")
	ErrNavigation       = errors.New("navigation failed")
	ErrNavigationPolicy = errors.New("navigation rejected by policy")
	ErrInjection        = errors.New("script injection failed")
	ErrInputNotFound    = errors.New("input element not found")
	ErrFileAttachment   = errors.New("file attachment failed")
	ErrPersistenceWrite = errors.New("persistence write failed")
	ErrPanelNotFound    = errors.New("panel not found")
	ErrSurfaceMissing   = errors.New("panel has no content surface")
)
