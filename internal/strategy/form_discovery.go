package strategy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

/*
FormDiscovery parses <form> elements on configured seed pages, builds a
bounded set of parameter combinations from each field's inputs/selects,
submits each combination, and regex-scans the response bodies for PDF
URLs. Many judicial sites gate their real document listings behind a
search form rather than exposing a crawlable index.
*/

type formField struct {
	name    string
	kind    string // text, select, checkbox, radio, textarea
	value   string
	options []string
}

type parsedForm struct {
	action string
	method string
	fields map[string]formField
}

type FormDiscoveryConfig struct {
	EnabledFlag     bool
	SeedPages       []string
	FormSelectors   []string
	MaxCombinations int
	TimeoutSeconds  int
	IncludePatterns []string
	ExcludePatterns []string
}

type FormDiscoveryStrategy struct {
	cfg    FormDiscoveryConfig
	client *http.Client
}

func NewFormDiscoveryStrategy(cfg FormDiscoveryConfig) *FormDiscoveryStrategy {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FormDiscoveryStrategy{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (f *FormDiscoveryStrategy) Name() string  { return "form_discovery" }
func (f *FormDiscoveryStrategy) Enabled() bool { return f.cfg.EnabledFlag && len(f.cfg.SeedPages) > 0 }
func (f *FormDiscoveryStrategy) Initialize(ctx context.Context) error { return nil }
func (f *FormDiscoveryStrategy) Cleanup(ctx context.Context) error    { return nil }

func (f *FormDiscoveryStrategy) Discover(ctx context.Context) (Result, error) {
	maxCombinations := f.cfg.MaxCombinations
	if maxCombinations <= 0 {
		maxCombinations = 1000
	}
	selectors := f.cfg.FormSelectors
	if len(selectors) == 0 {
		selectors = []string{"form"}
	}

	found := make(map[string]struct{})
	for _, pageURL := range f.cfg.SeedPages {
		forms, err := f.fetchAndParseForms(ctx, pageURL, selectors)
		if err != nil {
			continue
		}
		for _, form := range forms {
			for _, pdfURL := range f.submitFormAndExtract(ctx, form, maxCombinations) {
				found[pdfURL] = struct{}{}
			}
			if len(found) >= maxCombinations {
				break
			}
		}
	}

	seeds := make([]Seed, 0, len(found))
	for u := range found {
		seeds = append(seeds, Seed{URL: u, Method: "form_discovery"})
	}
	return Result{Seeds: seeds, Metadata: map[string]any{"total_seeds": len(seeds)}}, nil
}

func (f *FormDiscoveryStrategy) fetchAndParseForms(ctx context.Context, pageURL string, selectors []string) ([]parsedForm, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var forms []parsedForm
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if form, ok := parseForm(sel, pageURL); ok {
				forms = append(forms, form)
			}
		})
	}
	return forms, nil
}

func parseForm(sel *goquery.Selection, baseURL string) (parsedForm, bool) {
	action, exists := sel.Attr("action")
	if !exists {
		return parsedForm{}, false
	}
	method := strings.ToLower(sel.AttrOr("method", "get"))
	actionURL, ok := resolveRelative(baseURL, action)
	if !ok {
		actionURL = action
	}

	fields := make(map[string]formField)
	sel.Find("input, select, textarea").Each(func(_ int, inp *goquery.Selection) {
		name, exists := inp.Attr("name")
		if !exists || name == "" {
			return
		}
		tag := goquery.NodeName(inp)
		switch tag {
		case "select":
			var options []string
			inp.Find("option").Each(func(_ int, opt *goquery.Selection) {
				if v, ok := opt.Attr("value"); ok && v != "" {
					options = append(options, v)
				} else if text := strings.TrimSpace(opt.Text()); text != "" {
					options = append(options, text)
				}
			})
			if len(options) > 5 {
				options = options[:5]
			}
			fields[name] = formField{name: name, kind: "select", options: options}
		case "textarea":
			fields[name] = formField{name: name, kind: "textarea", value: strings.TrimSpace(inp.Text())}
		default:
			inputType := strings.ToLower(inp.AttrOr("type", "text"))
			value := inp.AttrOr("value", "")
			if inputType == "checkbox" || inputType == "radio" {
				fields[name] = formField{name: name, kind: inputType, value: value}
			} else {
				fields[name] = formField{name: name, kind: "text", value: value}
			}
		}
	})

	return parsedForm{action: actionURL, method: method, fields: fields}, true
}

func enumerateParameterSets(fields map[string]formField) []map[string]string {
	base := make(map[string]string)
	selections := make(map[string][]string)

	for name, field := range fields {
		switch field.kind {
		case "select":
			if len(field.options) > 0 {
				selections[name] = field.options
			} else {
				base[name] = ""
			}
		case "checkbox", "radio":
			if field.value != "" {
				selections[name] = []string{"", field.value}
			} else {
				selections[name] = []string{""}
			}
		default:
			base[name] = field.value
		}
	}

	if len(selections) == 0 {
		return []map[string]string{base}
	}

	combos := []map[string]string{cloneParams(base)}
	for name, values := range selections {
		for _, val := range values {
			combo := cloneParams(base)
			if val != "" {
				combo[name] = val
			}
			if !paramsContain(combos, combo) {
				combos = append(combos, combo)
			}
		}
	}
	return combos
}

func cloneParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func paramsContain(combos []map[string]string, target map[string]string) bool {
	for _, c := range combos {
		if len(c) != len(target) {
			continue
		}
		equal := true
		for k, v := range c {
			if target[k] != v {
				equal = false
				break
			}
		}
		if equal {
			return true
		}
	}
	return false
}

func (f *FormDiscoveryStrategy) submitFormAndExtract(ctx context.Context, form parsedForm, maxCombinations int) []string {
	combos := enumerateParameterSets(form.fields)
	found := make(map[string]struct{})

	for i, params := range combos {
		if i >= maxCombinations {
			break
		}
		select {
		case <-ctx.Done():
			return mapKeys(found)
		default:
		}

		html, err := f.submitOne(ctx, form, params)
		if err != nil {
			continue
		}
		for _, u := range searchResultPDFPattern.FindAllString(html, -1) {
			found[u] = struct{}{}
		}
	}
	return mapKeys(found)
}

func (f *FormDiscoveryStrategy) submitOne(ctx context.Context, form parsedForm, params map[string]string) (string, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	var req *http.Request
	var err error
	if form.method == "post" {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, form.action, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, form.action+"?"+values.Encode(), nil)
	}
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func mapKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
