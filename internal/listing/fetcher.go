// Package listing reads asking prices from public listing pages.
package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"prospect-portal/internal/ratelimit"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxBodyBytes = 5 << 20
	maxBackoff   = 60 * time.Second
)

var (
	ErrPriceNotFound = errors.New("price not found on listing page")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	// ErrListingGone is returned for 404/410 responses; retrying will not help
	ErrListingGone = errors.New("listing not found or delisted")
)

// Config controls how listing pages are fetched
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	MaxInFlight int
	HostDelay   time.Duration
	HostJitter  time.Duration

	Headless   bool
	ChromePath string

	BreakerThreshold int
	BreakerReset     time.Duration
}

// DefaultConfig returns polite defaults for a daily watch
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       2 * time.Second,
		MaxInFlight:      2,
		HostDelay:        5 * time.Second,
		HostJitter:       3 * time.Second,
		Headless:         false,
		BreakerThreshold: 8,
		BreakerReset:     time.Hour,
	}
}

// Quote is a price read from a listing page
type Quote struct {
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Price     float64   `json:"price"`
	Headless  bool      `json:"headless"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher downloads listing pages with retries, per-host pacing and a
// circuit breaker, falling back to headless Chrome for script-rendered pages.
type Fetcher struct {
	client  *http.Client
	cfg     Config
	limiter *ratelimit.HostLimiter
	breaker *CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time

	renderHeadless func(ctx context.Context, url string) (string, error)
}

// NewFetcher creates a fetcher
func NewFetcher(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "listing"))

	jar, err := cookiejar.New(nil)
	if err != nil {
		logger.Warn("cookie jar unavailable", zap.Error(err))
		jar = nil
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		cfg:     cfg,
		limiter: ratelimit.NewHostLimiter(cfg.MaxInFlight, cfg.HostDelay, cfg.HostJitter),
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset, logger),
		logger:  logger,
		now:     time.Now,
	}
	f.renderHeadless = f.fetchHTMLWithHeadlessBrowser
	return f
}

// Breaker exposes the circuit breaker for status endpoints
func (f *Fetcher) Breaker() *CircuitBreaker {
	return f.breaker
}

// FetchPrice downloads rawURL and extracts the asking price
func (f *Fetcher) FetchPrice(ctx context.Context, rawURL string) (*Quote, error) {
	target := NormalizeURL(rawURL)
	if target == "" {
		return nil, fmt.Errorf("empty listing url")
	}
	quote := &Quote{URL: target, Domain: ExtractDomain(target)}

	html, err := f.fetchHTML(ctx, target, quote.Domain)
	if err == nil {
		if price, ok := priceFromHTML(html); ok {
			quote.Price = price
			quote.FetchedAt = f.now()
			return quote, nil
		}
		err = ErrPriceNotFound
	}

	if !f.cfg.Headless || errors.Is(err, ErrListingGone) || errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	f.logger.Info("falling back to headless browser", zap.String("url", target), zap.Error(err))
	html, herr := f.renderHeadless(ctx, target)
	if herr != nil {
		return nil, fmt.Errorf("fetch %s: %w (headless: %v)", target, err, herr)
	}
	price, ok := priceFromHTML(html)
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", target, ErrPriceNotFound)
	}
	quote.Price = price
	quote.Headless = true
	quote.FetchedAt = f.now()
	return quote, nil
}

func priceFromHTML(html string) (float64, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}
	return ExtractPrice(doc)
}

func (f *Fetcher) fetchHTML(ctx context.Context, target, host string) (string, error) {
	resp, err := f.doRequestWithRetry(ctx, target, host)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// applyBrowserHeaders sets browser-like headers
func applyBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-PT,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// doRequestWithRetry performs a GET with exponential backoff. Client errors
// other than 429 are not retried.
func (f *Fetcher) doRequestWithRetry(ctx context.Context, target, host string) (*http.Response, error) {
	if !f.breaker.CanProceed() {
		s := f.breaker.Status()
		return nil, fmt.Errorf("%w (%d/%d failures)", ErrCircuitOpen, s.Failures, s.Total)
	}

	if err := f.limiter.Acquire(ctx, host); err != nil {
		return nil, err
	}
	defer f.limiter.Release()

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.backoff(attempt - 1)
			if lastStatus >= 500 {
				backoff = f.backoff(attempt + 1)
			}
			f.logger.Debug("retrying listing request",
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		applyBrowserHeaders(req)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("listing request failed", zap.String("url", target), zap.Int("attempt", attempt+1), zap.Error(err))
			f.breaker.RecordFailure(0)
			lastErr, lastStatus = err, 0
			continue
		}

		if resp.StatusCode == http.StatusOK {
			f.breaker.RecordSuccess()
			return resp, nil
		}
		resp.Body.Close()

		f.logger.Warn("listing request failed",
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Int("status", resp.StatusCode))
		lastErr = fmt.Errorf("status code %d", resp.StatusCode)
		lastStatus = resp.StatusCode

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return nil, fmt.Errorf("%w: status code %d", ErrListingGone, resp.StatusCode)
		}
		if resp.StatusCode >= 500 || isBlockingStatus(resp.StatusCode) {
			f.breaker.RecordFailure(resp.StatusCode)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if !f.breaker.CanProceed() {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, lastErr)
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", f.cfg.MaxRetries, lastErr)
}

// backoff is RetryDelay * 2^n, capped
func (f *Fetcher) backoff(n int) time.Duration {
	d := time.Duration(math.Pow(2, float64(n))) * f.cfg.RetryDelay
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// fetchHTMLWithHeadlessBrowser renders the page in Chrome and returns the
// resulting HTML
func (f *Fetcher) fetchHTMLWithHeadlessBrowser(ctx context.Context, target string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if f.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp: %w", err)
	}

	f.logger.Debug("headless fetch complete", zap.String("url", target), zap.Int("bytes", len(htmlContent)))
	return htmlContent, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
