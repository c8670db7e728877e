package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"prospect-portal/internal/listing"
	"prospect-portal/internal/models"
	"prospect-portal/internal/pricing"
)

// ErrRunInProgress is returned when a watch run is triggered while another
// one is still going
var ErrRunInProgress = errors.New("price watch already running")

// PriceFetcher reads the asking price of one listing
type PriceFetcher interface {
	FetchPrice(ctx context.Context, url string) (*listing.Quote, error)
}

// ProspectStore is the part of the prospect service the watcher needs
type ProspectStore interface {
	List(ctx context.Context) ([]models.Prospect, error)
	RecordPrice(ctx context.Context, id string, amount float64, date time.Time, source string) (*models.Prospect, bool, error)
	Today() time.Time
}

// WatchResult summarizes one pass over the listings
type WatchResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Checked    int       `json:"checked"`
	Skipped    int       `json:"skipped"`
	Updated    []string  `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Errors     int       `json:"errors"`
	Aborted    string    `json:"aborted,omitempty"`
}

// PriceWatcher re-reads listing prices of open prospects and records a new
// price entry for today whenever the asking price moved
type PriceWatcher struct {
	store       ProspectStore
	fetcher     PriceFetcher
	stopOnError bool
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	last    *WatchResult
}

// NewPriceWatcher creates a watcher
func NewPriceWatcher(store ProspectStore, fetcher PriceFetcher, stopOnError bool, logger *zap.Logger) *PriceWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceWatcher{
		store:       store,
		fetcher:     fetcher,
		stopOnError: stopOnError,
		logger:      logger.With(zap.String("component", "watcher")),
		now:         time.Now,
	}
}

// LastResult returns the result of the latest finished run, if any
func (w *PriceWatcher) LastResult() *WatchResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return nil
	}
	out := *w.last
	out.Updated = append([]string(nil), w.last.Updated...)
	return &out
}

// Running reports whether a run is in progress
func (w *PriceWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce checks every open prospect that has at least one listing link
func (w *PriceWatcher) RunOnce(ctx context.Context) (*WatchResult, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, ErrRunInProgress
	}
	w.running = true
	w.mu.Unlock()

	result, err := w.run(ctx)

	w.mu.Lock()
	w.running = false
	if result != nil {
		w.last = result
	}
	w.mu.Unlock()
	return result, err
}

func (w *PriceWatcher) run(ctx context.Context) (*WatchResult, error) {
	result := &WatchResult{StartedAt: w.now(), Updated: []string{}}

	prospects, err := w.store.List(ctx)
	if err != nil {
		return nil, err
	}
	w.logger.Info("price watch started", zap.Int("prospects", len(prospects)))

	for i, p := range prospects {
		if p.IsClosed() || len(p.Links) == 0 {
			result.Skipped++
			continue
		}
		if ctx.Err() != nil {
			result.Aborted = ctx.Err().Error()
			break
		}

		result.Checked++
		w.logger.Debug("checking prospect",
			zap.Int("index", i+1),
			zap.Int("total", len(prospects)),
			zap.String("id", p.ID))

		quote, err := w.firstQuote(ctx, p)
		if err != nil {
			result.Errors++
			w.logger.Warn("failed to read listing price", zap.String("id", p.ID), zap.Error(err))
			if errors.Is(err, listing.ErrCircuitOpen) {
				result.Aborted = err.Error()
				break
			}
			if w.stopOnError {
				result.Aborted = "stop on error"
				break
			}
			continue
		}

		if current, ok := pricing.CurrentPrice(p.PriceHistory); ok && current == quote.Price {
			result.Unchanged++
			continue
		}

		_, changed, err := w.store.RecordPrice(ctx, p.ID, quote.Price, w.store.Today(), models.PriceSourceWatcher)
		if err != nil {
			result.Errors++
			w.logger.Error("failed to record watched price", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		if !changed {
			result.Unchanged++
			continue
		}
		result.Updated = append(result.Updated, p.ID)
		w.logger.Info("listing price changed",
			zap.String("id", p.ID),
			zap.String("url", quote.URL),
			zap.Float64("price", quote.Price))
	}

	result.FinishedAt = w.now()
	w.logger.Info("price watch completed",
		zap.Int("checked", result.Checked),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("errors", result.Errors),
		zap.String("aborted", result.Aborted))
	return result, nil
}

// firstQuote returns the price of the first link that yields one
func (w *PriceWatcher) firstQuote(ctx context.Context, p models.Prospect) (*listing.Quote, error) {
	var lastErr error
	for _, link := range p.Links {
		quote, err := w.fetcher.FetchPrice(ctx, link.URL)
		if err == nil {
			return quote, nil
		}
		if errors.Is(err, listing.ErrCircuitOpen) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
