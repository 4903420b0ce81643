package pipeline

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	bili_archiver "bili-archiver"
	"bili-archiver/internal/seendb"
)

const DefaultWatchInterval = 30 * time.Minute

type WatchConfig struct {
	// Creators are the account IDs whose uploads are watched.
	Creators []int64
	// Interval between polls (0 means DefaultWatchInterval).
	Interval time.Duration
	SeenDB   seendb.Database
}

// Watcher polls creators' recent uploads and submits unseen videos to the
// processor. Uploads that already exist when the watcher first starts are
// marked seen without processing, so a fresh watcher doesn't archive a
// creator's entire back catalog.
type Watcher struct {
	config    WatchConfig
	platform  bili_archiver.PlatformClient
	processor *Processor
}

func NewWatcher(config WatchConfig, platform bili_archiver.PlatformClient, processor *Processor) *Watcher {
	if config.Interval <= 0 {
		config.Interval = DefaultWatchInterval
	}
	return &Watcher{
		config:    config,
		platform:  platform,
		processor: processor,
	}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := bili_archiver.Logger(ctx).Sugar().Named("watcher")
	log.Infow("watching creators", "creators", w.config.Creators, "interval", w.config.Interval)

	if err := w.poll(ctx, false); err != nil {
		log.Warnw("initial poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx, true); err != nil {
				log.Warnw("poll failed", zap.Error(err))
			}
		}
	}
}

// poll checks every watched creator once; with process=false, unseen uploads
// are only marked seen.
func (w *Watcher) poll(ctx context.Context, process bool) error {
	log := bili_archiver.Logger(ctx).Sugar().Named("watcher")
	var errs *multierror.Error
	for _, creator := range w.config.Creators {
		ids, err := w.platform.ListRecentUploads(ctx, creator)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, id := range ids {
			seen, err := w.config.SeenDB.Seen(id)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if seen {
				continue
			}
			// Mark first: a failed run goes to the ledger for batch retry
			// rather than being re-attempted every poll
			if err := w.config.SeenDB.MarkSeen(id); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if !process {
				continue
			}
			log.Infow("new upload", "creator", creator, "video_id", id)
			if err := w.processor.Process(ctx, id); err != nil {
				log.Warnw("processing new upload failed", "video_id", id, zap.Error(err))
			}
		}
	}
	return errs.ErrorOrNil()
}
