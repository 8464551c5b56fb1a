package proxypool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// fetchSource downloads one proxy source list and parses it into
// candidate records. Lines are "#"-comment-or-blank (skipped), or
// "scheme://host:port" / "host:port" (defaulting to http).
func fetchSource(ctx context.Context, client *http.Client, sourceURL string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d", sourceURL, resp.StatusCode)
	}

	return parseSourceBody(resp.Body, sourceURL)
}

func parseSourceBody(r io.Reader, sourceTag string) ([]Record, error) {
	var out []Record
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseEndpointLine(line, sourceTag)
		if err != nil {
			continue // malformed line, skip rather than fail the whole source
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

func parseEndpointLine(line, sourceTag string) (Record, error) {
	if !strings.Contains(line, "://") {
		line = "http://" + line
	}
	u, err := url.Parse(line)
	if err != nil {
		return Record{}, err
	}
	if u.Host == "" {
		return Record{}, fmt.Errorf("invalid proxy endpoint %q", line)
	}

	protocol := Protocol(strings.ToLower(u.Scheme))
	switch protocol {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
	default:
		return Record{}, fmt.Errorf("unsupported proxy protocol %q", u.Scheme)
	}

	host := u.Hostname()
	port, _ := strconv.Atoi(u.Port())

	return Record{
		Endpoint: fmt.Sprintf("%s://%s", protocol, u.Host),
		Source:   sourceTag,
		Protocol: protocol,
		Host:     host,
		Port:     port,
		TLS:      protocol == ProtocolHTTPS,
		LastCheck: time.Time{},
	}, nil
}
