// Package surface defines the content surface contract: the page a panel
// shows and the script channel into it.
package surface

import (
	"context"
)

// Surface is one panel's embedded page.
type Surface interface {
	// Load navigates to url.
	Load(ctx context.Context, url string) error
	// Reload reloads the current document.
	Reload(ctx context.Context) error
	// CanGoBack reports whether history has a previous entry.
	CanGoBack(ctx context.Context) (bool, error)
	// GoBack navigates one history entry back.
	GoBack(ctx context.Context) error
	// ExecuteScript evaluates an expression in the page and returns its
	// JSON-decoded result. Promises are awaited.
	ExecuteScript(ctx context.Context, script string) (any, error)
	// OnNavigate registers a callback for top-level navigations.
	OnNavigate(fn func(url string))
}

// NodeRef identifies a DOM node through the inspection channel.
type NodeRef int64

// FileInspector is the optional low-level channel used for attachments.
// FileInputs must pierce shadow roots.
type FileInspector interface {
	FileInputs(ctx context.Context) ([]NodeRef, error)
	SetFileInputFiles(ctx context.Context, node NodeRef, paths []string) error
}

// DocumentSource captures the current document markup.
type DocumentSource interface {
	OuterHTML(ctx context.Context) (string, error)
}

// Provider resolves the surface of a panel.
type Provider interface {
	Surface(id string) (Surface, bool)
}
