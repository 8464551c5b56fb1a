package page

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPPage is a Page backed by a single plain HTTP GET, parsed with
// goquery. No JavaScript execution: Evaluate, Screenshot, and MouseMove
// are no-ops/errors since there is no live browser behind it.
type HTTPPage struct {
	client  *http.Client
	headers map[string]string

	url    string
	status int
	doc    *goquery.Document
	raw    string
}

func NewHTTPPage(client *http.Client) *HTTPPage {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPage{client: client, headers: make(map[string]string)}
}

func (p *HTTPPage) SetExtraHTTPHeaders(headers map[string]string) {
	for k, v := range headers {
		p.headers[k] = v
	}
}

func (p *HTTPPage) Goto(ctx context.Context, url string, timeout time.Duration) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	p.url = resp.Request.URL.String()
	p.status = resp.StatusCode
	p.doc = doc
	p.raw, _ = doc.Html()
	return resp.StatusCode, nil
}

func (p *HTTPPage) Content() (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("page not loaded")
	}
	return p.raw, nil
}

func (p *HTTPPage) QuerySelectorAll(selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("page not loaded")
	}
	var out []Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &htmlElement{sel: s})
	})
	return out, nil
}

func (p *HTTPPage) Screenshot() ([]byte, error) {
	return nil, fmt.Errorf("screenshot unsupported on a plain HTTP page")
}

func (p *HTTPPage) MouseMove(x, y float64) error {
	return nil // no-op: no simulated pointer over a static document
}

func (p *HTTPPage) Evaluate(ctx context.Context, script string) (interface{}, error) {
	return nil, fmt.Errorf("javascript evaluation unsupported on a plain HTTP page")
}

func (p *HTTPPage) Title() (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("page not loaded")
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

func (p *HTTPPage) URL() string { return p.url }

func (p *HTTPPage) Close() error { return nil }

type htmlElement struct {
	sel *goquery.Selection
}

func (e *htmlElement) GetAttribute(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *htmlElement) TextContent() string {
	return e.sel.Text()
}

func (e *htmlElement) IsVisible() bool {
	if style, ok := e.sel.Attr("style"); ok {
		lowered := strings.ToLower(style)
		if strings.Contains(lowered, "display:none") || strings.Contains(lowered, "display: none") {
			return false
		}
	}
	if _, hidden := e.sel.Attr("hidden"); hidden {
		return false
	}
	return true
}
