// Package fetchengine implements the Fetch Engine (C3): it drives a
// headless-browser capability through an authenticated navigation, a
// scroll-and-harvest loop, and per-card raw-record extraction, while
// consulting the Pacing Governor and Proxy Pool for every request.
package fetchengine

import (
	"context"
	"time"
)

// SessionToken is one cookie injected into a browser context at creation,
// opaque to this package.
type SessionToken struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// LaunchOptions parameterizes BrowserDriver.LaunchContext.
type LaunchOptions struct {
	ProfileDir string
	Viewport   [2]int
	UserAgent  string
	Cookies    []SessionToken
	ProxyURL   string // empty means direct connection
}

// GotoOptions parameterizes Page.Goto.
type GotoOptions struct {
	WaitFor   string // e.g. "domcontentloaded"
	TimeoutMs int
}

// BrowserDriver is the minimal headless-browser capability this package
// consumes. Production implementations wrap a real browser automation
// library; tests supply an in-memory fake.
type BrowserDriver interface {
	LaunchContext(ctx context.Context, opts LaunchOptions) (BrowserContext, error)
}

// BrowserContext is one browser context, owned exclusively by a single
// campaign's fetch loop.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single browser tab/page.
type Page interface {
	Goto(ctx context.Context, url string, opts GotoOptions) error
	URL() string
	Content() (string, error)
	Title() (string, error)
	Evaluate(ctx context.Context, script string) (any, error)
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)
	WheelDown(ctx context.Context, dx, dy int) error
	WaitForTimeout(ctx context.Context, d time.Duration) error
}

// Element is a single DOM element returned by Page.QuerySelectorAll.
type Element interface {
	InnerText(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, error)
	ScrollIntoViewIfNeeded(ctx context.Context) error
}
