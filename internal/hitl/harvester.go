// Package hitl implements the human-in-the-loop session: the escalation
// path a tier takes when it surfaces captcha_required, giving an operator a
// live browser viewport to solve the challenge by hand (spec.md §4.4).
package hitl

import (
	"context"

	"github.com/titanscrape/titan/internal/model"
)

// Harvester is the narrow contract a real browser backend satisfies during
// a session: render the challenge page, let the Coordinator poll it for
// auto-resolution, stream frames to the connected admin, forward the
// admin's input, and harvest the resulting credentials once solved. This
// mirrors internal/tier's BrowserDriver abstraction so the orchestrator
// never depends on a concrete browser automation library.
type Harvester interface {
	// Navigate loads url and returns once the initial page has rendered.
	Navigate(ctx context.Context, url string, opts model.FetchOptions) error
	// Snapshot captures one JPEG-encoded viewport frame.
	Snapshot(ctx context.Context) ([]byte, error)
	// IsSolved reports whether the page no longer shows a known challenge
	// signature and has rendered a non-trivial body (spec.md §4.4 step 5).
	IsSolved(ctx context.Context) (bool, error)
	// Inject forwards one admin input event to the underlying browser.
	Inject(ctx context.Context, event model.InputEvent) error
	// Harvest extracts cookies, user agent, and final HTML after a solve.
	Harvest(ctx context.Context) (cookies []model.Cookie, userAgent, html string, err error)
	// Close releases the underlying browser session.
	Close(ctx context.Context) error
}
