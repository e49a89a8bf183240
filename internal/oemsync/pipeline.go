// Package oemsync pushes local products, receipts and anonymized rollups to
// the remote reporting API. It only ever reads the local store; the single piece of state it
// writes locally is the watermark file (plus its error log).
package oemsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"mystore/backend/internal/config"
	"mystore/backend/internal/domain"
	"mystore/backend/internal/query"
	"mystore/backend/internal/store"
	"mystore/backend/internal/syncwire"
	"mystore/backend/internal/xid"
)

type Mode string

const (
	ModeStandard    Mode = "standard"
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeIncremental, ModeFull:
		return Mode(raw), nil
	}
	return "", fmt.Errorf("unknown sync mode %q", raw)
}

// Source is the read side of the local repository.
type Source interface {
	ListProducts(ctx context.Context, filter *query.Filter[domain.Product]) ([]domain.Product, error)
	ListReceipts(ctx context.Context, filter *query.Filter[domain.ReceiptBundle]) ([]domain.ReceiptBundle, error)
}

// Remote is the reporting API as the pipeline sees it.
type Remote interface {
	Authenticate(ctx context.Context) error
	PushProducts(ctx context.Context, batch []syncwire.Product) (*syncwire.ProductsResponse, error)
	PushReceipt(ctx context.Context, receipt syncwire.Receipt) (*syncwire.ReceiptsResponse, error)
	PushAggregate(ctx context.Context, req syncwire.AggregateRequest) (*syncwire.AggregateResponse, error)
}

type Options struct {
	BatchSize         int
	TokenRefreshEvery int
	ReceiptAttempts   int
	SafetyMargin      time.Duration
	DefaultWindow     time.Duration
	ThrottleEvery     int
	ThrottlePause     time.Duration
	LockTTL           time.Duration
	Aggregates        AggregateOptions
	Watermark         *Watermark
	ErrorLog          *ErrorLog
	Locker            Locker
	Logger            *logrus.Entry
	Now               func() time.Time
}

type Pipeline struct {
	source Source
	remote Remote
	opts   Options
	logger *logrus.Entry
}

func New(source Source, remote Remote, opts Options) *Pipeline {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.TokenRefreshEvery < 1 {
		opts.TokenRefreshEvery = 50
	}
	if opts.ReceiptAttempts < 1 {
		opts.ReceiptAttempts = 2
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = 90 * 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.Locker == nil {
		opts.Locker = NoopLocker{}
	}
	opts.Aggregates = opts.Aggregates.withDefaults()
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		source: source,
		remote: remote,
		opts:   opts,
		logger: opts.Logger.WithField("module", "oemsync"),
	}
}

// Run performs one sync. A returned error means the run was aborted; record
// failures are reported through the Report and do not produce an error.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (report *Report, err error) {
	started := p.opts.Now()
	report = &Report{RunID: xid.New("sync"), Mode: mode, StartedAt: started}
	logger := p.logger.WithFields(logrus.Fields{"run_id": report.RunID, "mode": mode})
	defer func() {
		report.FinishedAt = p.opts.Now()
	}()

	release, err := p.opts.Locker.Acquire(ctx, p.opts.LockTTL)
	if err != nil {
		return report, err
	}
	defer func() {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.WithError(releaseErr).Warn("failed to release sync lock")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run crashed: %v", r)
			report.WatermarkAdvanced = false
			p.logFailure("Sync run crashed: %v", r)
		}
	}()

	since, err := p.windowStart(mode, started)
	if err != nil {
		return report, err
	}
	report.Since = since

	if err := p.remote.Authenticate(ctx); err != nil {
		p.logFailure("Authentication failed: %v", err)
		return report, err
	}

	if err := p.syncProducts(ctx, report, logger); err != nil {
		return report, err
	}
	if err := p.syncReceipts(ctx, since, report, logger); err != nil {
		return report, err
	}
	if err := p.syncAggregates(ctx, report, logger); err != nil {
		return report, err
	}

	if !report.Failed() && p.opts.Watermark != nil {
		if err := p.opts.Watermark.Save(started); err != nil {
			config.LogError(logger, "oemsync", "Run", "save watermark", nil, err)
			return report, err
		}
		report.WatermarkAdvanced = true
	}
	logger.WithFields(logrus.Fields{
		"products_ok":     report.Products.Success,
		"products_failed": report.Products.Failed,
		"receipts_ok":     report.Receipts.Success,
		"receipts_skip":   report.Receipts.Skipped,
		"receipts_failed": report.Receipts.Failed,
		"aggregates_ok":   report.Aggregates.Success,
		"aggregates_fail": report.Aggregates.Failed,
		"watermark":       report.WatermarkAdvanced,
	}).Info("sync run finished")
	return report, nil
}

// windowStart resolves the earliest receipt date to send. A nil result
// means everything.
func (p *Pipeline) windowStart(mode Mode, now time.Time) (*time.Time, error) {
	switch mode {
	case ModeFull:
		return nil, nil
	case ModeIncremental:
		if p.opts.Watermark != nil {
			last, ok, err := p.opts.Watermark.Load()
			if err != nil {
				return nil, err
			}
			if ok {
				since := last.Add(-p.opts.SafetyMargin)
				return &since, nil
			}
		}
		return nil, nil
	default:
		since := now.Add(-p.opts.DefaultWindow)
		return &since, nil
	}
}

func (p *Pipeline) syncProducts(ctx context.Context, report *Report, logger *logrus.Entry) error {
	products, err := p.source.ListProducts(ctx, nil)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	report.Products.Total = len(products)

	for start, batchNum := 0, 1; start < len(products); start, batchNum = start+p.opts.BatchSize, batchNum+1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.opts.BatchSize, len(products))
		batch := make([]syncwire.Product, 0, end-start)
		for _, product := range products[start:end] {
			batch = append(batch, productPayload(product))
		}

		var resp *syncwire.ProductsResponse
		err := p.withTokenRetry(ctx, func() error {
			var pushErr error
			resp, pushErr = p.remote.PushProducts(ctx, batch)
			return pushErr
		})
		if err != nil {
			report.Products.Failed += len(batch)
			p.logFailure("Product batch %d failed: %v", batchNum, err)
			continue
		}
		report.Products.Success += len(batch)
		report.ProductsCreated += resp.Created
		report.ProductsUpdated += resp.Updated
		logger.WithFields(logrus.Fields{"batch": batchNum, "created": resp.Created, "updated": resp.Updated}).Debug("product batch synced")
	}
	return nil
}

func (p *Pipeline) syncReceipts(ctx context.Context, since *time.Time, report *Report, logger *logrus.Entry) error {
	bundles, err := p.source.ListReceipts(ctx, store.ReceiptFilter(domain.ReceiptQuery{From: since}))
	if err != nil {
		return fmt.Errorf("list receipts: %w", err)
	}
	slices.SortStableFunc(bundles, func(a, b domain.ReceiptBundle) int {
		if c := b.Receipt.Date.Compare(a.Receipt.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.Receipt.ID, a.Receipt.ID)
	})
	report.Receipts.Total = len(bundles)

	for idx, bundle := range bundles {
		position := idx + 1
		if err := ctx.Err(); err != nil {
			return err
		}
		if position > 1 && position%p.opts.TokenRefreshEvery == 0 {
			if err := p.remote.Authenticate(ctx); err != nil {
				config.LogError(logger, "oemsync", "syncReceipts", "proactive token refresh", position, err)
			} else {
				report.TokenRefreshes++
			}
		}

		payload, ok := receiptPayload(bundle)
		if !ok {
			report.Receipts.Skipped++
			continue
		}

		var resp *syncwire.ReceiptsResponse
		err := p.withTokenRetry(ctx, func() error {
			var pushErr error
			resp, pushErr = p.remote.PushReceipt(ctx, payload)
			return pushErr
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Receipts.Failed++
			failure := Failure{ReceiptID: bundle.Receipt.ID, ReceiptNumber: payload.ReceiptNumber, Error: err.Error()}
			report.Failures = append(report.Failures, failure)
			p.logFailure("Receipt %s (ID: %d): %v", failure.ReceiptNumber, failure.ReceiptID, err)
		} else {
			report.Receipts.Success++
			report.NewSales += resp.NewSales
			report.NewPayments += resp.NewPayments
		}

		if p.opts.ThrottleEvery > 0 && position%p.opts.ThrottleEvery == 0 {
			if err := sleep(ctx, p.opts.ThrottlePause); err != nil {
				return err
			}
		}
	}
	return nil
}

// withTokenRetry runs push up to ReceiptAttempts times, refreshing the
// token after each 401. Other errors end the attempts at once.
func (p *Pipeline) withTokenRetry(ctx context.Context, push func() error) error {
	var err error
	for attempt := 1; attempt <= p.opts.ReceiptAttempts; attempt++ {
		err = push()
		if err == nil || !errors.Is(err, ErrUnauthorized) || attempt == p.opts.ReceiptAttempts {
			return err
		}
		if authErr := p.remote.Authenticate(ctx); authErr != nil {
			return authErr
		}
	}
	return err
}

func (p *Pipeline) logFailure(format string, args ...any) {
	p.logger.Errorf(format, args...)
	if p.opts.ErrorLog == nil {
		return
	}
	if err := p.opts.ErrorLog.Append(format, args...); err != nil {
		config.LogError(p.logger, "oemsync", "logFailure", "append error log", p.opts.ErrorLog.Path(), err)
	}
}
