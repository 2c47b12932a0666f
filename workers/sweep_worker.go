package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmaka/jmakabackend/services"
)

// Sweeper is the part of services.Sweeper the worker drives.
type Sweeper interface {
	Sweep(ctx context.Context) (services.SweepResult, error)
}

// SweepWorker runs the retention sweep on a fixed period so idle deployments still
// expire their files. Trigger requests an extra run; requests made while one is
// pending collapse into it.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	trigger  chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	mu   sync.Mutex
	last services.SweepResult
	runs int
}

func NewSweepWorker(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "sweep-worker")),
	}
}

// Start launches the loop; it stops when ctx ends. Wait blocks until it has.
func (sw *SweepWorker) Start(ctx context.Context) {
	sw.wg.Add(1)
	go sw.loop(ctx)
	sw.logger.Info("sweep worker started", slog.Duration("interval", sw.interval))
}

func (sw *SweepWorker) Wait() {
	sw.wg.Wait()
}

// Trigger asks for a sweep soon without blocking.
func (sw *SweepWorker) Trigger() {
	select {
	case sw.trigger <- struct{}{}:
	default:
	}
}

// Last returns the most recent result and how many sweeps have completed.
func (sw *SweepWorker) Last() (services.SweepResult, int) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.last, sw.runs
}

func (sw *SweepWorker) loop(ctx context.Context) {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweep worker stopping")
			return
		case <-ticker.C:
			sw.run(ctx)
		case <-sw.trigger:
			sw.run(ctx)
		}
	}
}

func (sw *SweepWorker) run(ctx context.Context) {
	res, err := sw.sweeper.Sweep(ctx)
	if err != nil {
		sw.logger.Debug("sweep interrupted", slog.String("error", err.Error()))
		return
	}

	sw.mu.Lock()
	sw.last = res
	sw.runs++
	sw.mu.Unlock()

	if res.ExpiredUploads > 0 || res.ExpiredComposites > 0 || res.MigratedRenditions > 0 {
		sw.logger.Info("background sweep removed or migrated entries",
			slog.Int("expiredUploads", res.ExpiredUploads),
			slog.Int("expiredComposites", res.ExpiredComposites),
			slog.Int("migratedRenditions", res.MigratedRenditions),
		)
	}
}
