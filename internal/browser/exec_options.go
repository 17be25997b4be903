// internal/browser/exec_options.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"github.com/xkilldash9x/socialpilot/internal/config"
)

// execFlags computes the Chrome command line flags for a launch. A false value removes
// a flag that chromedp would otherwise set by default.
func execFlags(cfg config.BrowserConfig, visible bool, vp schemas.Viewport) map[string]interface{} {
	flags := map[string]interface{}{
		// Removes the "controlled by automated software" infobar and navigator.webdriver.
		"enable-automation":        false,
		"disable-blink-features":   "AutomationControlled",
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-infobars":         true,
		"password-store":           "basic",
		"use-mock-keychain":        true,
		"disable-dev-shm-usage":    true,
	}
	if !cfg.Headless || visible {
		flags["headless"] = false
		flags["hide-scrollbars"] = false
		flags["mute-audio"] = false
	} else {
		flags["headless"] = "new"
	}
	if vp.Width > 0 && vp.Height > 0 {
		flags["window-size"] = formatWindowSize(vp)
	}

	// Additional flags from the config file's 'args' slice.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}

// execOptions converts the launch parameters into chromedp allocator options.
func execOptions(cfg config.BrowserConfig, profileDir, userAgent string, visible bool, vp schemas.Viewport) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.UserDataDir(profileDir))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	for name, value := range execFlags(cfg, visible, vp) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

func formatWindowSize(vp schemas.Viewport) string {
	return fmt.Sprintf("%d,%d", vp.Width, vp.Height)
}
