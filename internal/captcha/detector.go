package captcha

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/page"
)

/*
Responsibilities
- Classify a loaded Page as CAPTCHA-challenged or clean
- On a positive classification, write an alert sidecar (and, if
  configured, a screenshot) and apply the pause policy
- Never attempts to solve a CAPTCHA: the only outcomes are continue,
  skip, or abort
*/

// patterns indicating a CAPTCHA, rate-limit, or bot-wall page, English
// and Spanish (the target sites are judicial, Spanish-language).
var patterns = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"cloudflare",
	"ddos protection",
	"access denied",
	"too many requests",
	"rate limit exceeded",
	"verify you are human",
	"comprueba que eres humano",
	"verificación de seguridad",
	"acceso denegado",
	"demasiadas solicitudes",
}

var selectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	".g-recaptcha",
	".h-captcha",
	".captcha",
	"[data-captcha]",
}

var titleMarkers = []string{"captcha", "security check", "verification"}

// Outcome is what the caller should do with the current URL after a
// CAPTCHA classification.
type Outcome string

const (
	OutcomeContinue Outcome = "continue"
	OutcomeSkip     Outcome = "skip"
	OutcomeAbort    Outcome = "abort"
)

type Policy struct {
	PauseOnCaptcha bool
	PauseSeconds   int // 0 with PauseOnCaptcha=true means block for interactive input
	TakeScreenshot bool
	ScreenshotDir  string
}

type Detector struct {
	policy       Policy
	metadataSink metadata.MetadataSink
	prompt       func() (string, error) // overridable for tests; reads one line from stdin by default
}

func NewDetector(policy Policy, metadataSink metadata.MetadataSink) *Detector {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	return &Detector{policy: policy, metadataSink: metadataSink, prompt: readStdinLine}
}

// Check applies the three classification rules, any positive hit wins.
func (d *Detector) Check(p page.Page) (isCaptcha bool, reason string) {
	if content, err := p.Content(); err == nil {
		lowered := strings.ToLower(content)
		for _, pattern := range patterns {
			if strings.Contains(lowered, pattern) {
				return true, fmt.Sprintf("Pattern match: %s", pattern)
			}
		}
	}

	for _, selector := range selectors {
		elements, err := p.QuerySelectorAll(selector)
		if err == nil && len(elements) > 0 {
			return true, fmt.Sprintf("element found: %s", selector)
		}
	}

	if title, err := p.Title(); err == nil {
		lowered := strings.ToLower(title)
		for _, marker := range titleMarkers {
			if strings.Contains(lowered, marker) {
				return true, fmt.Sprintf("title contains: %s", marker)
			}
		}
	}

	return false, ""
}

// Resolve handles a positive classification: writes the alert sidecar
// and optional screenshot, then applies the pause policy and returns
// the caller's next action.
func (d *Detector) Resolve(ctx context.Context, p page.Page, sessionID, reason string) Outcome {
	url := p.URL()

	var screenshotPath string
	if d.policy.TakeScreenshot {
		if path, err := d.saveScreenshot(p, sessionID); err == nil {
			screenshotPath = path
			d.metadataSink.RecordArtifact(metadata.ArtifactScreenshot, path,
				metadata.NewAttr(metadata.AttrSessionID, sessionID))
		}
	}

	d.writeAlert(sessionID, url, reason, screenshotPath)

	if !d.policy.PauseOnCaptcha {
		time.Sleep(5 * time.Second)
		return OutcomeContinue
	}

	if d.policy.PauseSeconds > 0 {
		select {
		case <-time.After(time.Duration(d.policy.PauseSeconds) * time.Second):
		case <-ctx.Done():
		}
		return OutcomeContinue
	}

	return d.awaitManualDecision()
}

func (d *Detector) awaitManualDecision() Outcome {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("CAPTCHA detected. Solve it manually, then choose: [continue/skip/abort]")
	fmt.Println(strings.Repeat("=", 80))

	choice, err := d.prompt()
	if err != nil {
		return OutcomeContinue
	}
	switch strings.ToLower(strings.TrimSpace(choice)) {
	case "skip":
		return OutcomeSkip
	case "abort":
		return OutcomeAbort
	default:
		return OutcomeContinue
	}
}

func readStdinLine() (string, error) {
	var line string
	_, err := fmt.Scanln(&line)
	return line, err
}

func (d *Detector) saveScreenshot(p page.Page, sessionID string) (string, error) {
	data, err := p.Screenshot()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.policy.ScreenshotDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(d.policy.ScreenshotDir, fmt.Sprintf("captcha_%s_%d.png", sessionID, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Detector) writeAlert(sessionID, url, reason, screenshotPath string) {
	if d.policy.ScreenshotDir == "" {
		return
	}
	_ = os.MkdirAll(d.policy.ScreenshotDir, 0755)
	path := filepath.Join(d.policy.ScreenshotDir, fmt.Sprintf("alert_%s.txt", sessionID))
	body := fmt.Sprintf("CAPTCHA detected at %s\nURL: %s\nReason: %s\nScreenshot: %s\n",
		time.Now().UTC().Format(time.RFC3339), url, reason, screenshotPath)
	_ = os.WriteFile(path, []byte(body), 0644)

	d.metadataSink.RecordArtifact(metadata.ArtifactCaptchaAlert, path,
		metadata.NewAttr(metadata.AttrSessionID, sessionID))
}
