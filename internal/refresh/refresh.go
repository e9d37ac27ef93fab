// Package refresh periodically refetches both list views and feeds the board.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"consultboard/internal/board"
	"consultboard/internal/listui"
	appLog "consultboard/internal/log"
)

// Queries pairs each record set with its list view.
type Queries map[board.SetKind]listui.Query

// Refresher runs the two independent fetches on demand or on a cron schedule.
type Refresher struct {
	fetcher listui.Fetcher
	board   *board.Controller
	queries Queries
	timeout time.Duration

	// AfterRun, if set, is called once both fetches of a run have delivered.
	AfterRun func(ctx context.Context)

	mu      sync.Mutex
	lastRun time.Time
}

// New constructs a Refresher. timeout bounds each fetch; zero means 30s.
func New(fetcher listui.Fetcher, b *board.Controller, q Queries, timeout time.Duration) *Refresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Refresher{fetcher: fetcher, board: b, queries: q, timeout: timeout}
}

// RunOnce starts one fetch per record set. Each result is delivered to the
// board as soon as it arrives, in whatever order they complete. RunOnce
// returns after both have been delivered.
func (r *Refresher) RunOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, kind := range []board.SetKind{board.ThisWeek, board.All} {
		q, ok := r.queries[kind]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(kind board.SetKind, q listui.Query) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			page, err := r.fetcher.Fetch(fctx, q)
			r.board.Deliver(kind, page, err)
		}(kind, q)
	}
	wg.Wait()

	r.mu.Lock()
	r.lastRun = time.Now()
	r.mu.Unlock()

	if r.AfterRun != nil {
		r.AfterRun(ctx)
	}
}

// LastRun reports when the most recent run finished.
func (r *Refresher) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

// Start runs once immediately and then on spec until ctx is canceled.
// Overlapping runs are skipped.
func (r *Refresher) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	if _, err := c.AddFunc(spec, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}

	appLog.Info("refresh scheduler starting", "schedule", spec)
	go r.RunOnce(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		appLog.Info("refresh scheduler stopped")
	}()
	return nil
}

// ValidateSchedule reports whether spec is a valid five-field cron expression.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// cronLogger routes cron's internal logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
