// Package driver abstracts the browser-automation engine behind a small
// capability interface. The session core treats the engine as a black box:
// how pages render, how accessibility trees are computed, and how input is
// dispatched are all engine concerns.
package driver

import "context"

// Driver owns the engine process and creates isolated browsing contexts.
type Driver interface {
	// NewContext creates an isolated browsing context (cookies, storage,
	// cache). The first call may pay the engine's cold-start cost.
	NewContext(ctx context.Context) (Context, error)
	// Connected reports whether the engine is reachable.
	Connected() bool
	// Shutdown releases the engine and every context it owns.
	Shutdown(ctx context.Context) error
}

// Context is one tenant's isolated browsing context.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single open tab inside a context. Every call is bounded by a
// per-call timeout supplied through ctx or configured in the adapter.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	URL() string
	// AccessibilityTree renders the page's semantic structure as indented
	// `role "name"` lines. The text format is the contract consumed by the
	// refs package.
	AccessibilityTree(ctx context.Context) (string, error)
	// Locate resolves the nth element matching (role, name) in document
	// order, mirroring how references were assigned.
	Locate(ctx context.Context, role, name string, nth int) (Locator, error)
	// Query resolves the first element matching a CSS selector.
	Query(ctx context.Context, selector string) (Locator, error)
	Scroll(ctx context.Context, deltaY float64) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Locator is a resolved handle to one on-page element.
type Locator interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	Hover(ctx context.Context) error
	// Press sends a single key (e.g. "Enter") to the element.
	Press(ctx context.Context, key string) error
}
