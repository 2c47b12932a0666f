package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jmaka/jmakabackend/database"
	"github.com/jmaka/jmakabackend/media"
	"github.com/jmaka/jmakabackend/models"
	"github.com/jmaka/jmakabackend/repository"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jmaka_sweep_runs_total",
		Help: "Completed retention and migration sweeps",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jmaka_sweep_duration_seconds",
		Help:    "Duration of a full sweep",
		Buckets: prometheus.DefBuckets,
	})
	sweepExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jmaka_sweep_expired_records_total",
		Help: "Records removed by retention, per collection",
	}, []string{"collection"})
	sweepMigratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jmaka_sweep_migrated_renditions_total",
		Help: "Upload records moved off a retired rendition width",
	})
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	MigratedRenditions int           `json:"migratedRenditions"`
	ExpiredUploads     int           `json:"expiredUploads"`
	ExpiredComposites  int           `json:"expiredComposites"`
	Duration           time.Duration `json:"duration"`
}

// Sweeper runs the legacy width migration followed by retention expiry of both
// collections. It is run at the top of every listing and mutating request.
type Sweeper struct {
	uploads    repository.UploadRepositoryInterface
	composites repository.CompositeRepositoryInterface
	store      media.Store
	cleaner    *Cleaner

	// serializes migrations; always taken before the history lock
	migrationLock *database.Lock
	migrations    map[int]int

	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewSweeper(
	uploads repository.UploadRepositoryInterface,
	composites repository.CompositeRepositoryInterface,
	store media.Store,
	cleaner *Cleaner,
	retention time.Duration,
	migrations map[int]int,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		uploads:       uploads,
		composites:    composites,
		store:         store,
		cleaner:       cleaner,
		migrationLock: database.NewLock("migration"),
		migrations:    migrations,
		retention:     retention,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "sweeper")),
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep returns an error only when ctx ends before the pass completes. Storage
// failures are logged and the remaining steps still run.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	migrated, err := s.migrate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Warn("legacy width migration failed", slog.String("error", err.Error()))
	}
	result.MigratedRenditions = migrated

	cutoff := s.now().UTC().Add(-s.retention)

	expiredUploads, err := s.uploads.RemoveExpired(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Warn("failed to expire uploads", slog.String("error", err.Error()))
	}
	// files go after the lock is released
	for _, rec := range expiredUploads {
		s.cleaner.RemoveUploadFiles(ctx, rec)
	}
	result.ExpiredUploads = len(expiredUploads)

	expiredComposites, err := s.composites.RemoveExpired(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Warn("failed to expire composites", slog.String("error", err.Error()))
	}
	for _, rec := range expiredComposites {
		s.cleaner.RemoveCompositeFile(rec)
	}
	result.ExpiredComposites = len(expiredComposites)

	result.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepDuration.Observe(result.Duration.Seconds())
	sweepExpiredTotal.WithLabelValues("history").Add(float64(result.ExpiredUploads))
	sweepExpiredTotal.WithLabelValues("composites").Add(float64(result.ExpiredComposites))
	sweepMigratedTotal.Add(float64(result.MigratedRenditions))

	if result.ExpiredUploads > 0 || result.ExpiredComposites > 0 || result.MigratedRenditions > 0 {
		s.logger.Info("sweep finished",
			slog.Int("migrated", result.MigratedRenditions),
			slog.Int("expiredUploads", result.ExpiredUploads),
			slog.Int("expiredComposites", result.ExpiredComposites),
			slog.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

func (s *Sweeper) migrate(ctx context.Context) (int, error) {
	if len(s.migrations) == 0 {
		return 0, nil
	}
	release, err := s.migrationLock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	legacy := make([]int, 0, len(s.migrations))
	for w := range s.migrations {
		legacy = append(legacy, w)
	}
	sort.Ints(legacy)

	total := 0
	for _, from := range legacy {
		to := s.migrations[from]
		n, err := s.uploads.MigrateWidth(ctx, from, to, func(rec models.UploadRecord) string {
			return s.moveRendition(rec.StoredName, from, to)
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// moveRendition relocates the file of a retired width when present. The record is
// rewritten to the new path even when the move fails.
func (s *Sweeper) moveRendition(storedName string, from, to int) string {
	src := s.store.ResizedRelPath(from, storedName)
	dst := s.store.ResizedRelPath(to, storedName)
	if s.store.Exists(src) && !s.store.Exists(dst) {
		if err := s.store.Move(src, dst); err != nil {
			cleanupErrorsTotal.WithLabelValues(string(media.AssetTypeResized)).Inc()
			s.logger.Warn("failed to move legacy rendition",
				slog.String("from", src),
				slog.String("to", dst),
				slog.String("error", err.Error()),
			)
		}
	}
	return dst
}
