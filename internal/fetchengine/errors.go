package fetchengine

import "github.com/rotisserie/eris"

// Sentinel classification errors surfaced to the Orchestrator. Transient
// failures (navigation timeout, DOM read failure) are absorbed inside the
// harvest loop and never reach these; only these three terminate a
// sub-task.
var (
	// ErrRateLimited means the provider pushed back; the Orchestrator
	// decides whether to stop the campaign or move to the next seed.
	ErrRateLimited = eris.New("fetchengine: rate limited")
	// ErrUnauthenticated means the session lost auth; campaign fails
	// unless the caller can re-authenticate.
	ErrUnauthenticated = eris.New("fetchengine: unauthenticated")
	// ErrExhausted means both retry budgets ran out with no new records.
	ErrExhausted = eris.New("fetchengine: retry budgets exhausted")
)
