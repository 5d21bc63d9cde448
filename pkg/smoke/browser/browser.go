// Package browser drives Chrome for the smoke test.
// It wraps Rod and adapts its pages to the smoke.Page capability.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Config configures Chrome launch options.
type Config struct {
	Headless          bool          // Run in headless mode (default: true)
	ChromeWebSecurity bool          // Enforce same-origin policy (default: false)
	Bin               string        // Chrome binary; empty lets Rod find or download one
	Timeout           time.Duration // Default command timeout (default: 30s)
}

// DefaultConfig returns the launch options the smoke test runs with.
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// Client owns one Chrome process.
type Client struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration
}

// NewClient launches Chrome and connects to it.
// The browser is configured with:
//   - No sandbox (for container compatibility)
//   - Same-origin policy disabled unless ChromeWebSecurity is set, so the
//     identity provider's origin can be driven from the same page
func NewClient(cfg Config) (*Client, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu")
	if !cfg.ChromeWebSecurity {
		l = l.Set("disable-web-security").
			Set("disable-features", "IsolateOrigins,site-per-process")
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		launcher: l,
		browser:  browser,
		timeout:  timeout,
	}, nil
}

// NewPage opens a blank tab.
func (c *Client) NewPage(ctx context.Context) (*Page, error) {
	if c.browser == nil {
		return nil, errors.New("browser not connected")
	}
	p, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &Page{page: p, timeout: c.timeout}, nil
}

// PID returns the process id of the Chrome this client launched.
func (c *Client) PID() int {
	return c.launcher.PID()
}

// Close cleans up browser resources: it closes the browser, kills the
// process if it is still running and removes its profile directory.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *Client) Close() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
	}
	c.Kill()
	return err
}

// Kill terminates the Chrome process without asking the browser to close
// and removes its profile directory.
func (c *Client) Kill() {
	if c.launcher == nil {
		return
	}
	c.launcher.Kill()
	c.launcher.Cleanup()
}
