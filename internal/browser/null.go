// Package browser holds the composition-root wiring for the Fetch Engine's
// BrowserDriver capability. Per the module's scope, a real headless-browser
// backend is a Non-goal: operators supply their own driver (Playwright,
// chromedp, or similar) that satisfies fetchengine.BrowserDriver. NullDriver
// is the placeholder wired by default so the binary still builds and fails
// loudly, rather than silently, when no real driver is configured.
package browser

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-engine/internal/fetchengine"
)

// NullDriver implements fetchengine.BrowserDriver by refusing every launch.
type NullDriver struct{}

// LaunchContext always fails: NullDriver is a wiring placeholder, not a
// browser automation backend.
func (NullDriver) LaunchContext(ctx context.Context, opts fetchengine.LaunchOptions) (fetchengine.BrowserContext, error) {
	return nil, eris.New("browser: no BrowserDriver configured; wire a real implementation (Playwright, chromedp, ...) before running a campaign")
}
