package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"landscout/httputil"
)

const (
	navigationTimeoutMS = 30000
	renderWait          = 1500 * time.Millisecond
)

// BrowserFetcher renders listing pages in headless Chromium so photos injected by
// scripts end up in the markup. The browser starts on first use and is shared.
type BrowserFetcher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	context     playwright.BrowserContext
	initialized bool
}

func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{}
}

// FetchPage navigates to pageURL and returns the rendered HTML.
func (f *BrowserFetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.ensureBrowser(); err != nil {
		return "", err
	}

	f.mu.Lock()
	bctx := f.context
	f.mu.Unlock()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	timeout := float64(navigationTimeoutMS)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < navigationTimeoutMS*time.Millisecond {
			timeout = float64(remaining.Milliseconds())
		}
	}

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(timeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if resp != nil && resp.Status() >= 400 {
		return "", fmt.Errorf("navigate %s: status %d", pageURL, resp.Status())
	}

	// Gallery scripts run after DOMContentLoaded
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(renderWait):
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

func (f *BrowserFetcher) ensureBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(httputil.MobileUserAgent),
		Locale:    playwright.String("ko-KR"),
		IsMobile:  playwright.Bool(true),
		ExtraHttpHeaders: map[string]string{
			"Referer": httputil.LandReferer,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	f.pw, f.browser, f.context = pw, browser, bctx
	f.initialized = true
	log.Println("Browser: chromium started")
	return nil
}

func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return
	}
	if f.context != nil {
		f.context.Close()
	}
	if f.browser != nil {
		f.browser.Close()
	}
	if f.pw != nil {
		f.pw.Stop()
	}
	f.initialized = false
}
