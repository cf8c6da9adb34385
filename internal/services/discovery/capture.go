package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testforge/qaagent/internal/domain"
)

// CaptureConfig configures the headless browser
type CaptureConfig struct {
	Headless  bool
	Timeout   time.Duration
	UserAgent string
}

// PageCapturer renders live pages with headless Chromium
type PageCapturer struct {
	config CaptureConfig
	logger *zap.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPageCapturer creates a capturer. The browser starts on first use.
func NewPageCapturer(config CaptureConfig, logger *zap.Logger) *PageCapturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 QAAgent/1.0"
	}
	return &PageCapturer{config: config, logger: logger}
}

// Capture navigates to rawURL, waits for the network to settle and returns the rendered markup
func (c *PageCapturer) Capture(ctx context.Context, rawURL string) (*CapturedPage, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	page, err := c.render(ctx, rawURL)
	if err != nil {
		return nil, domain.ErrCaptureFailed(rawURL, err)
	}

	c.logger.Info("captured page",
		zap.String("url", rawURL),
		zap.String("title", page.Title),
		zap.Int("bytes", len(page.HTML)),
	)
	return page, nil
}

func (c *PageCapturer) render(ctx context.Context, rawURL string) (*CapturedPage, error) {
	browser, err := c.start()
	if err != nil {
		return nil, err
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1920,
			Height: 1080,
		},
		UserAgent: playwright.String(c.config.UserAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	defer page.Close()

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", rawURL, err)
	}
	if resp != nil && resp.Status() >= 400 {
		return nil, fmt.Errorf("page returned status %d", resp.Status())
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("reading page content: %w", err)
	}
	title, _ := page.Title()

	return &CapturedPage{URL: rawURL, Title: title, HTML: html}, nil
}

// Close shuts down the browser and the Playwright driver
func (c *PageCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		c.browser.Close()
		c.browser = nil
	}
	if c.pw != nil {
		err := c.pw.Stop()
		c.pw = nil
		return err
	}
	return nil
}

func (c *PageCapturer) start() (playwright.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		return c.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(c.config.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	c.pw = pw
	c.browser = browser
	return browser, nil
}

// FileName derives the ingestion file name for a captured URL, e.g. shop.example.com.html
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "page.html"
	}
	host := strings.ReplaceAll(u.Hostname(), ":", "_")
	return host + ".html"
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ErrValidationField("url", "invalid URL: "+err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.ErrValidationField("url", fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return domain.ErrValidationField("url", fmt.Sprintf("URL %q has no host", rawURL))
	}
	return nil
}
