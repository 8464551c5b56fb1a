package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeDiscoveryURL produces the canonical identity form used for PDF
// link deduplication and frontier visited-set membership. It is the only
// function in the engine permitted to decide URL identity.
//
// Rules applied, in order:
//   - scheme and host lowercased
//   - default port (80 for http, 443 for https) removed
//   - path percent-decoded then re-encoded in canonical form
//   - fragment removed
//   - for a PDF URL (path ends in ".pdf", case-insensitive): query string
//     dropped entirely, unless identityQueryParams is non-empty, in which
//     case only the listed keys are retained, sorted by key
//   - for a non-PDF URL: query string retained with keys sorted
//   - a trailing "/index.html" path segment collapses to "/"
//
// NormalizeDiscoveryURL is pure, deterministic, and idempotent:
// NormalizeDiscoveryURL(NormalizeDiscoveryURL(u, ...)) == NormalizeDiscoveryURL(u, ...).
func NormalizeDiscoveryURL(sourceURL url.URL, identityQueryParams []string) url.URL {
	out := sourceURL

	out.Scheme = lowerASCII(out.Scheme)
	out.Host = lowerASCII(out.Host)

	if host, port := out.Hostname(), out.Port(); port != "" {
		if (out.Scheme == "http" && port == "80") || (out.Scheme == "https" && port == "443") {
			out.Host = host
		}
	}

	// url.Parse has already percent-decoded Path; dropping RawPath makes
	// String() re-encode it in canonical form.
	out.RawPath = ""
	out.Path = collapseIndexHTML(out.Path)

	out.Fragment = ""
	out.RawFragment = ""

	if isPDFPath(out.Path) {
		out.RawQuery = filteredQuery(out.RawQuery, identityQueryParams)
	} else {
		out.RawQuery = sortedQuery(out.RawQuery)
	}
	out.ForceQuery = out.RawQuery != "" && out.ForceQuery

	if len(out.Path) > 1 {
		out.Path = stripTrailingSlash(out.Path)
	}

	return out
}

// isPDFPath reports whether a URL path names a PDF document.
func isPDFPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}

// reencodePath decodes percent-escapes in the path then re-encodes it in
// canonical form, so equivalent escaped/unescaped spellings collapse to one
// representation.
func reencodePath(path string) string {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		// Not a valid percent-encoding; leave the path untouched rather
		// than guess.
		return path
	}
	return (&url.URL{Path: decoded}).EscapedPath()
}

// collapseIndexHTML strips a trailing "/index.html" segment, leaving the
// parent directory (or root) as the canonical form.
func collapseIndexHTML(path string) string {
	const suffix = "/index.html"
	if strings.HasSuffix(path, suffix) {
		trimmed := strings.TrimSuffix(path, suffix)
		if trimmed == "" {
			return "/"
		}
		return trimmed
	}
	return path
}

// filteredQuery keeps only the keys named in identityQueryParams (sorted);
// an empty allowlist drops the query string entirely.
func filteredQuery(rawQuery string, identityQueryParams []string) string {
	if len(identityQueryParams) == 0 || rawQuery == "" {
		return ""
	}

	allowed := make(map[string]struct{}, len(identityQueryParams))
	for _, k := range identityQueryParams {
		allowed[k] = struct{}{}
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}

	kept := url.Values{}
	for k, v := range values {
		if _, ok := allowed[k]; ok {
			kept[k] = v
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return sortedEncode(kept)
}

// sortedQuery re-serializes a raw query string with keys sorted, so two
// URLs differing only in parameter order normalize identically.
func sortedQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return sortedEncode(values)
}

func sortedEncode(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
