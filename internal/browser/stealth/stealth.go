package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsJS string

// DefaultUserAgent is used when no stored session supplies one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent     string   `json:"userAgent"`
	Platform      string   `json:"platform"`
	Languages     []string `json:"languages"`
	Timezone      string   `json:"-"`
	Locale        string   `json:"-"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	WebGLVendor   string   `json:"webglVendor,omitempty"`
	WebGLRenderer string   `json:"webglRenderer,omitempty"`
}

// NewPersona builds a persona consistent with a user agent and viewport. An empty user
// agent falls back to DefaultUserAgent.
func NewPersona(userAgent string, vp schemas.Viewport) Persona {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return Persona{
		UserAgent: userAgent,
		Platform:  platformFromUserAgent(userAgent),
		Languages: []string{"en-US", "en"},
		Locale:    "en-US",
		Width:     vp.Width,
		Height:    vp.Height,
	}
}

// Script returns the evasions script with the persona bound in.
func (p Persona) Script() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode persona: %w", err)
	}
	return fmt.Sprintf("(function(persona){\n%s\n})(%s);", evasionsJS, data), nil
}

// AcceptLanguage renders the persona languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := []string{p.Languages[0]}
	q := 9
	for _, l := range p.Languages[1:] {
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", l, q))
		if q > 1 {
			q--
		}
	}
	return strings.Join(parts, ",")
}

// Apply constructs the CDP actions that make an automated tab present as a stock,
// user-operated Chrome. They must run before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona.",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Int("width", p.Width),
		zap.Int("height", p.Height),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage()).
			WithPlatform(p.Platform),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.Script()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	return tasks
}

func platformFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	}
	return "Win32"
}
