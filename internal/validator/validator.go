package validator

import (
	"context"
	"net/http"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/proxypool"
)

/*
Responsibilities
- Confirm a discovered PDF URL is actually reachable, without ever
  downloading its body
- Report the outcome back to the Proxy Pool so a flaky proxy's score
  reflects real traffic, not just synthetic echo checks

Never issues a GET. A validation failure never deletes a link record;
the caller decides how to translate the Outcome into a status update.
*/

const defaultTimeout = 10 * time.Second

type Outcome struct {
	Accessible    bool
	Status        int
	ContentType   string
	ContentLength int64
	FinalURL      string
	RedirectCount int
	Err           error
}

type Validator struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Validator{timeout: timeout}
}

// Validate issues a HEAD request through proxy (optional) using
// userAgent, following redirects, and reports the result. If proxy is
// the zero value, the request goes direct.
func (v *Validator) Validate(ctx context.Context, target string, proxy *proxypool.Record, userAgent string) Outcome {
	client := &http.Client{Timeout: v.timeout}
	if proxy != nil {
		transport, err := proxypool.DialTransport(*proxy)
		if err != nil {
			return Outcome{Err: err}
		}
		client.Transport = transport
	}

	redirects := 0
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		redirects = len(via)
		if len(via) >= 10 {
			return http.ErrUseLastResponse
		}
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, target, nil)
	if err != nil {
		return Outcome{Err: err}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Outcome{Err: err, RedirectCount: redirects}
	}
	defer resp.Body.Close()

	return Outcome{
		Accessible:    resp.StatusCode == http.StatusOK,
		Status:        resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		FinalURL:      resp.Request.URL.String(),
		RedirectCount: redirects,
	}
}
