package proxypool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/h12w/socks"
	"golang.org/x/net/proxy"
)

// transportFor builds an *http.Transport that routes through record's
// endpoint using the dialer appropriate to its protocol variant. A
// dialer construction failure is a proxy-level error the caller should
// report via MarkResult(success=false).
func transportFor(record *Record) (*http.Transport, error) {
	switch record.Protocol {
	case ProtocolHTTP, ProtocolHTTPS:
		proxyURL, err := url.Parse(record.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy endpoint %s: %w", record.Endpoint, err)
		}
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil

	case ProtocolSOCKS5:
		dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("%s:%d", record.Host, record.Port), nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer for %s: %w", record.Endpoint, err)
		}
		return &http.Transport{DialContext: contextDialerAdapter(dialer)}, nil

	case ProtocolSOCKS4:
		addr := fmt.Sprintf("%s:%d", record.Host, record.Port)
		return &http.Transport{
			DialContext: func(ctx context.Context, network, target string) (net.Conn, error) {
				return socks.DialSocks4(addr, target)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", record.Protocol)
	}
}

// contextDialerAdapter wraps a proxy.Dialer (no context support) behind
// the DialContext shape http.Transport expects.
func contextDialerAdapter(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- result{conn, err}
		}()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			return r.conn, r.err
		}
	}
}
