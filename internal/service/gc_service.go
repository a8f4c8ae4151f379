package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/storage"
)

// errBatchFull stops a storage walk once a run has collected enough orphans.
var errBatchFull = errors.New("batch full")

// ContentSweeper removes stored video files that no video references.
// Such files are left behind when a ban cascade fails to delete a file or an
// upload dies between storing the file and recording the video.
type ContentSweeper struct {
	videoRepo repository.VideoRepository
	storage   storage.Backend
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	config    SweeperConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// SweeperConfig contains content sweeper configuration.
type SweeperConfig struct {
	// Interval is how often to sweep.
	Interval time.Duration

	// GracePeriod is how old an unreferenced file must be before removal.
	// It keeps in-flight uploads from being swept.
	GracePeriod time.Duration

	// BatchSize is the maximum number of files to remove per run.
	BatchSize int

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    1 * time.Hour,
		GracePeriod: 24 * time.Hour,
		BatchSize:   1000,
	}
}

// NewContentSweeper creates a new content sweeper.
func NewContentSweeper(
	videoRepo repository.VideoRepository,
	backend storage.Backend,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config SweeperConfig,
) *ContentSweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweeperConfig().BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	return &ContentSweeper{
		videoRepo: videoRepo,
		storage:   backend,
		locker:    locker,
		metrics:   m,
		logger:    logger.With().Str("service", "gc").Logger(),
		config:    config,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (gc *ContentSweeper) Start() {
	gc.mu.Lock()
	if gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = true
	gc.mu.Unlock()

	gc.logger.Info().
		Dur("interval", gc.config.Interval).
		Dur("grace_period", gc.config.GracePeriod).
		Int("batch_size", gc.config.BatchSize).
		Bool("dry_run", gc.config.DryRun).
		Msg("starting content sweeper")

	go gc.runLoop()
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (gc *ContentSweeper) Stop() {
	gc.mu.Lock()
	if !gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = false
	gc.mu.Unlock()

	close(gc.stopChan)
	<-gc.doneChan

	gc.logger.Info().Msg("content sweeper stopped")
}

func (gc *ContentSweeper) runLoop() {
	defer close(gc.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-gc.stopChan
		cancel()
	}()

	gc.RunOnce(ctx)

	ticker := time.NewTicker(gc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gc.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepResult contains the result of a sweep run.
type SweepResult struct {
	// FilesDeleted is the number of files removed, or that would be in a dry run.
	FilesDeleted int

	// BytesFreed is the total size of those files.
	BytesFreed int64

	// Errors is the number of errors encountered.
	Errors int

	// Duration is how long the run took.
	Duration time.Duration

	// HasMore is true when the batch filled up and orphans may remain.
	HasMore bool

	// Skipped is true when another process held the sweep lock.
	Skipped bool
}

// RunOnce executes a single sweep. It can be called manually or by the scheduler.
func (gc *ContentSweeper) RunOnce(ctx context.Context) SweepResult {
	start := time.Now()
	result := SweepResult{}

	lockTTL := gc.config.Interval / 2
	if lockTTL < 5*time.Minute {
		lockTTL = 5 * time.Minute
	}

	sweepLock := lock.NewLock(gc.locker, lock.Keys.ContentGC())
	acquired, err := sweepLock.Acquire(ctx, lockTTL)
	if err != nil {
		gc.logger.Error().Err(err).Msg("failed to acquire sweep lock")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		gc.logger.Debug().Msg("sweep lock held by another process, skipping run")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := sweepLock.Release(context.WithoutCancel(ctx)); err != nil {
			gc.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	orphans, err := gc.findOrphans(ctx)
	if err != nil {
		gc.logger.Error().Err(err).Msg("failed to scan storage")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	if len(orphans) > gc.config.BatchSize {
		orphans = orphans[:gc.config.BatchSize]
		result.HasMore = true
	}

	for _, info := range orphans {
		if gc.config.DryRun {
			gc.logger.Info().
				Str("content_handle", info.Handle).
				Int64("size", info.Size).
				Msg("[DRY RUN] would delete orphan file")
			result.FilesDeleted++
			result.BytesFreed += info.Size
			continue
		}

		// Re-check right before deleting; an upload may have claimed the handle meanwhile.
		referenced, err := gc.videoRepo.ExistsByContentHandle(ctx, info.Handle)
		if err != nil {
			gc.logger.Error().Err(err).Str("content_handle", info.Handle).Msg("failed to check file reference")
			result.Errors++
			continue
		}
		if referenced {
			continue
		}

		if err := gc.storage.Delete(ctx, info.Handle); err != nil {
			gc.logger.Error().Err(err).Str("content_handle", info.Handle).Msg("failed to delete orphan file")
			result.Errors++
			continue
		}

		gc.logger.Debug().
			Str("content_handle", info.Handle).
			Int64("size", info.Size).
			Msg("deleted orphan file")

		result.FilesDeleted++
		result.BytesFreed += info.Size
	}

	result.Duration = time.Since(start)
	gc.metrics.RecordGCRun(result.Duration.Seconds(), result.FilesDeleted, result.BytesFreed, len(orphans))

	if result.HasMore {
		gc.logger.Info().Msg("more orphan files remain for next run")
	}
	gc.logger.Info().
		Int("files_deleted", result.FilesDeleted).
		Int64("bytes_freed", result.BytesFreed).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("content sweep completed")

	return result
}

// findOrphans walks the storage backend and returns up to BatchSize+1 files
// past the grace period that no video references.
func (gc *ContentSweeper) findOrphans(ctx context.Context) ([]storage.ContentInfo, error) {
	cutoff := time.Now().Add(-gc.config.GracePeriod)
	var orphans []storage.ContentInfo

	err := gc.storage.Walk(ctx, func(info storage.ContentInfo) error {
		if info.ModTime.After(cutoff) {
			return nil
		}
		referenced, err := gc.videoRepo.ExistsByContentHandle(ctx, info.Handle)
		if err != nil {
			return err
		}
		if referenced {
			return nil
		}
		orphans = append(orphans, info)
		if len(orphans) > gc.config.BatchSize {
			return errBatchFull
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBatchFull) {
		return nil, err
	}
	return orphans, nil
}
