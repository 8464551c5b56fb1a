package page

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromePage is a Page backed by a headless Chrome tab via chromedp. It
// executes JavaScript, so it is the adapter the CAPTCHA Detector and
// Taxonomy strategy rely on for scripted anti-bot pages.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc

	url        string
	httpStatus int
	headers    map[string]string
}

// NewChromePage allocates a fresh headless tab derived from allocatorCtx
// (itself built once per process via chromedp.NewExecAllocator).
func NewChromePage(allocatorCtx context.Context) *ChromePage {
	ctx, cancel := chromedp.NewContext(allocatorCtx)
	return &ChromePage{ctx: ctx, cancel: cancel, headers: make(map[string]string)}
}

func (p *ChromePage) SetExtraHTTPHeaders(headers map[string]string) {
	for k, v := range headers {
		p.headers[k] = v
	}
}

func (p *ChromePage) Goto(ctx context.Context, url string, timeout time.Duration) (int, error) {
	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	status := 0
	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			status = int(resp.Response.Status)
		}
	})

	actions := []chromedp.Action{}
	if len(p.headers) > 0 {
		hdrs := network.Headers{}
		for k, v := range p.headers {
			hdrs[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(hdrs))
	}
	actions = append(actions, chromedp.Navigate(url))

	if err := chromedp.Run(navCtx, actions...); err != nil {
		return status, fmt.Errorf("navigating to %s: %w", url, err)
	}

	if err := chromedp.Run(navCtx, chromedp.Location(&p.url)); err != nil {
		p.url = url
	}
	if status == 0 {
		status = http.StatusOK
	}
	p.httpStatus = status
	return status, nil
}

func (p *ChromePage) Content() (string, error) {
	var html string
	if err := chromedp.Run(p.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

// nodeResult mirrors the shape of the JS object built in
// QuerySelectorAll's evaluated expression; field names match its keys
// case-insensitively for chromedp's JSON decode.
type nodeResult struct {
	Attrs   map[string]string `json:"attrs"`
	Text    string            `json:"text"`
	Visible bool              `json:"visible"`
}

func (p *ChromePage) QuerySelectorAll(selector string) ([]Element, error) {
	var results []nodeResult

	err := chromedp.Run(p.ctx, chromedp.Evaluate(fmt.Sprintf(`
		Array.from(document.querySelectorAll(%q)).map(el => ({
			attrs: Object.fromEntries(Array.from(el.attributes).map(a => [a.name, a.value])),
			text: el.textContent || "",
			visible: !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)
		}))
	`, selector), &results))
	if err != nil {
		return nil, err
	}

	out := make([]Element, 0, len(results))
	for _, r := range results {
		out = append(out, &chromeElement{attrs: r.Attrs, text: r.Text, visible: r.Visible})
	}
	return out, nil
}

func (p *ChromePage) Screenshot() ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(p.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *ChromePage) MouseMove(x, y float64) error {
	return chromedp.Run(p.ctx, chromedp.MouseEvent("mouseMoved", x, y))
}

func (p *ChromePage) Evaluate(ctx context.Context, script string) (interface{}, error) {
	var result interface{}
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &result)); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *ChromePage) Title() (string, error) {
	var title string
	if err := chromedp.Run(p.ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (p *ChromePage) URL() string { return p.url }

func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}

type chromeElement struct {
	attrs   map[string]string
	text    string
	visible bool
}

func (e *chromeElement) GetAttribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *chromeElement) TextContent() string { return e.text }

func (e *chromeElement) IsVisible() bool { return e.visible }
