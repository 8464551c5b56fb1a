package page

import (
	"context"
	"time"
)

/*
Responsibilities
- Abstract "a loaded web page" behind one capability interface so the
  Frontier, CAPTCHA Detector, and Link Extractor never know whether a
  page came from a plain HTTP GET or a headless browser
- Two adapters satisfy this interface: httpPage (goquery over a plain
  GET, fast, no JS) and chromePage (chromedp, full JS execution)

Nothing in this package decides which adapter to use for a given URL;
that policy lives with the caller (the scheduler's Orchestrator, by the
configured page engine).
*/

// Element is a single matched DOM node.
type Element interface {
	GetAttribute(name string) (string, bool)
	TextContent() string
	IsVisible() bool
}

// Page is the capability surface the rest of the engine drives a loaded
// document through.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) (httpStatus int, err error)
	Content() (string, error)
	QuerySelectorAll(selector string) ([]Element, error)
	SetExtraHTTPHeaders(headers map[string]string)
	Screenshot() ([]byte, error)
	MouseMove(x, y float64) error
	Evaluate(ctx context.Context, script string) (interface{}, error)
	Title() (string, error)
	URL() string
	Close() error
}
