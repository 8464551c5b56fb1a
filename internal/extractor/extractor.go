package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/urlutil"
)

/*
Responsibilities
- Find every PDF URL reachable from a page's HTML by three independent
  methods, union the results, and keep the highest-confidence record per
  normalized-identity URL
- Find same-registered-host internal navigation links, bounded and
  filtered, for the Frontier to enqueue at depth+1

Only decides WHAT to extract. Does not decide whether a link has been
visited before — that is the Frontier's and the URL Normalizer's job.
*/

var pdfURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+\.pdf`)

var excludedSchemes = []string{"javascript:", "mailto:", "tel:"}

var excludedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".ico",
	".woff", ".woff2", ".ttf", ".zip", ".mp4", ".mp3",
}

type LinkExtractor struct {
	metadataSink metadata.MetadataSink
}

func NewLinkExtractor(metadataSink metadata.MetadataSink) *LinkExtractor {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	return &LinkExtractor{metadataSink: metadataSink}
}

// Extract runs all three PDF-detection methods plus internal-link
// discovery against one page's HTML, relative to pageURL.
func (e *LinkExtractor) Extract(pageURL url.URL, html string) (Result, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		extractionErr := &ExtractionError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
		e.metadataSink.RecordError(metadata.ErrorRecord{
			PackageName: "extractor",
			Action:      "Extract",
			Cause:       mapExtractionErrorToMetadataCause(extractionErr.Cause),
			ErrorString: extractionErr.Error(),
			ObservedAt:  time.Now(),
			Attrs:       []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, pageURL.String())},
		})
		return Result{}, extractionErr
	}

	pdfs := e.extractPDFsBySelector(doc, pageURL)
	pdfs = append(pdfs, e.extractPDFsByRegex(html, pdfs)...)
	pdfs = append(pdfs, e.extractPDFsByScriptScan(doc, pdfs)...)
	pdfs = dedupeByHighestConfidence(pdfs)

	internalLinks := e.extractInternalLinks(doc, pageURL)

	return Result{PDFs: pdfs, InternalLinks: internalLinks}, nil
}

func (e *LinkExtractor) extractPDFsBySelector(doc *goquery.Document, pageURL url.URL) []PDFCandidate {
	var out []PDFCandidate
	doc.Find("a[href$='.pdf']").Each(func(i int, s *goquery.Selection) {
		if i >= maxAnchorsScanned {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, err := resolveAgainst(pageURL, href)
		if err != nil {
			return
		}
		out = append(out, PDFCandidate{URL: resolved, Method: MethodCSSSelector, Confidence: 0.9})
	})
	return out
}

func (e *LinkExtractor) extractPDFsByRegex(html string, existing []PDFCandidate) []PDFCandidate {
	seen := candidateURLSet(existing)
	var out []PDFCandidate
	for _, match := range pdfURLPattern.FindAllString(html, -1) {
		key := normalizedIdentity(match)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, PDFCandidate{URL: match, Method: MethodRegexHTML, Confidence: 0.7})
	}
	return out
}

func (e *LinkExtractor) extractPDFsByScriptScan(doc *goquery.Document, existing []PDFCandidate) []PDFCandidate {
	seen := candidateURLSet(existing)
	var out []PDFCandidate
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		for _, match := range pdfURLPattern.FindAllString(text, -1) {
			key := normalizedIdentity(match)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, PDFCandidate{URL: match, Method: MethodScriptScan, Confidence: 0.6})
		}
	})
	return out
}

// normalizedIdentity returns the key two spellings of the same PDF
// collapse to. Falls back to the raw string if it doesn't parse as a URL.
func normalizedIdentity(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	normalized := urlutil.NormalizeDiscoveryURL(*parsed, nil)
	return normalized.String()
}

func candidateURLSet(candidates []PDFCandidate) map[string]struct{} {
	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		set[normalizedIdentity(c.URL)] = struct{}{}
	}
	return set
}

// dedupeByHighestConfidence collapses candidates sharing the same
// normalized-identity URL, keeping the one with the highest confidence.
func dedupeByHighestConfidence(candidates []PDFCandidate) []PDFCandidate {
	best := make(map[string]PDFCandidate, len(candidates))
	var order []string
	for _, c := range candidates {
		key := normalizedIdentity(c.URL)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.Confidence > existing.Confidence {
			best[key] = c
		}
	}
	out := make([]PDFCandidate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

func (e *LinkExtractor) extractInternalLinks(doc *goquery.Document, pageURL url.URL) []InternalLink {
	registrable, err := publicsuffix.EffectiveTLDPlusOne(pageURL.Hostname())
	if err != nil {
		registrable = pageURL.Hostname()
	}

	var out []InternalLink
	seen := make(map[string]struct{})
	scanned := 0
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if scanned >= maxAnchorsScanned {
			return false
		}
		scanned++

		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		for _, scheme := range excludedSchemes {
			if strings.HasPrefix(strings.ToLower(href), scheme) {
				return true
			}
		}

		resolved, err := resolveAgainst(pageURL, href)
		if err != nil {
			return true
		}
		resolvedURL, err := url.Parse(resolved)
		if err != nil {
			return true
		}
		resolvedURL.Fragment = ""

		if hasExcludedExtension(resolvedURL.Path) {
			return true
		}

		otherRegistrable, err := publicsuffix.EffectiveTLDPlusOne(resolvedURL.Hostname())
		if err != nil {
			otherRegistrable = resolvedURL.Hostname()
		}
		if otherRegistrable != registrable {
			return true
		}

		normalized := resolvedURL.String()
		if _, dup := seen[normalized]; dup {
			return true
		}
		seen[normalized] = struct{}{}

		out = append(out, InternalLink{URL: normalized})
		return len(out) < maxInternalLinksKept
	})
	return out
}

func hasExcludedExtension(path string) bool {
	lowered := strings.ToLower(path)
	for _, ext := range excludedExtensions {
		if strings.HasSuffix(lowered, ext) {
			return true
		}
	}
	return false
}

func resolveAgainst(base url.URL, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing href %q: %w", ref, err)
	}
	return base.ResolveReference(refURL).String(), nil
}
