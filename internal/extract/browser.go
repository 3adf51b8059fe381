package extract

import "context"

// ElementRef is an opaque handle to an element resolved by a live
// browser session.
type ElementRef string

// BrowserSession is the live-automation collaborator, used when markup
// extraction needs interaction: scrolling a lazy grid into view,
// re-reading the DOM after a reload. Implementations live outside this
// module; the session lifecycle (acquire/release, anti-detection
// configuration) is the caller's responsibility.
type BrowserSession interface {
	Locate(ctx context.Context, candidates []LocatorCandidate) (ElementRef, error)
	Click(ctx context.Context, el ElementRef) error
	Type(ctx context.Context, el ElementRef, text string) error
	Scroll(ctx context.Context, direction string, amount int) error
	CurrentPayload(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
