// Package pipeline drives a video from its platform ID to a fully-integrated
// library item: fetch metadata, download the streams, mux, write metadata,
// process cast, relocate into the library, and notify the user. Failures are
// recorded in a ledger so they can be retried in a later batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	bili_archiver "bili-archiver"
	"bili-archiver/async"
	"bili-archiver/database"
	"bili-archiver/internal/ledger"
	"bili-archiver/internal/library"
	"bili-archiver/internal/nfo"
	"bili-archiver/internal/pubsub"
	"bili-archiver/internal/sync_"
	"bili-archiver/util"
)

var (
	// ErrPreviouslyFailed means the video is in the failure ledger; it is only
	// processed again via RetryFailed.
	ErrPreviouslyFailed = errors.New("video previously failed")

	ErrProcessorClosed = errors.New("processor closed")
)

const (
	// DefaultRetryLimit caps how many ledger entries one RetryFailed call
	// takes on.
	DefaultRetryLimit = 5

	DefaultVideoLinkBase = "https://www.bilibili.com/video/"
)

// Fetcher downloads a URL to a local file, reporting the outcome as a
// boolean (retries and logging happen inside the implementation).
type Fetcher interface {
	Fetch(ctx context.Context, url string, path string) bool
}

var _ Fetcher = (*bili_archiver.Fetcher)(nil)

// Muxer combines downloaded video and audio streams into one file.
type Muxer interface {
	Mux(ctx context.Context, videoPath string, audioPath string, outPath string) error
}

// RunRecorder persists run history; *database.Database implements it.
type RunRecorder interface {
	InsertRun(run *database.Run) error
	UpdateRun(run *database.Run) error
}

type Config struct {
	Platform bili_archiver.PlatformClient
	Host     bili_archiver.HostServer
	Fetcher  Fetcher
	Muxer    Muxer
	Ledger   *ledger.Ledger
	// Database is optional; nil disables run history.
	Database RunRecorder
	// TempDir is the base directory for per-task staging areas ("" means the
	// system default).
	TempDir string
	// RetryLimit caps one RetryFailed batch (0 means DefaultRetryLimit).
	RetryLimit int
	// VideoLinkBase prefixes the video ID to form the notification link (""
	// means DefaultVideoLinkBase).
	VideoLinkBase string
}

type Processor struct {
	config Config
	events pubsub.Publisher[Event]
	closed sync_.Event
}

func NewProcessor(config Config) *Processor {
	if config.RetryLimit <= 0 {
		config.RetryLimit = DefaultRetryLimit
	}
	if config.VideoLinkBase == "" {
		config.VideoLinkBase = DefaultVideoLinkBase
	}
	return &Processor{
		config: config,
		events: pubsub.NewPublisher[Event](),
	}
}

func (p *Processor) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return p.events.Subscribe()
}

// SubscribeFiltered is like Subscribe, but only delivers events matching the
// filter (e.g. a long-running watcher can skip per-stage updates).
func (p *Processor) SubscribeFiltered(filter func(Event) bool) (pubsub.ReceiverCloser[Event], error) {
	s := pubsub.NewChannel[Event](1)
	if err := p.events.AddSubscriber(pubsub.NewFilteredSender[Event](s, filter)); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Processor) Close() {
	if p.closed.Set() {
		p.events.Close()
	}
}

// Process runs the whole pipeline for one video ID. A video already in the
// failure ledger is skipped without side effects; any other failure records
// the ID in the ledger, except an invalid ID, which can never succeed and so
// is never recorded for retry.
func (p *Processor) Process(ctx context.Context, videoID string) error {
	log := bili_archiver.Logger(ctx).Sugar().Named("pipeline").With("video_id", videoID)

	if p.closed.IsSet() {
		return ErrProcessorClosed
	}

	if found, err := p.config.Ledger.Contains(videoID); err != nil {
		return err
	} else if found {
		log.Infow("skipping video recorded as failed")
		return fmt.Errorf("%w: %v", ErrPreviouslyFailed, videoID)
	}

	task := newTask(videoID, p.events)
	p.events.Send(TaskAdded{taskEvent{task}})

	run := &database.Run{
		VideoID:   videoID,
		Status:    string(TaskStatusInit),
		StartedAt: task.State().StartedAt,
	}
	if p.config.Database != nil {
		if err := p.config.Database.InsertRun(run); err != nil {
			log.Warnw("failed to record run", zap.Error(err))
		}
	}

	libraryPath, err := p.run(ctx, task)
	if err != nil {
		task.abort(err)
		if errors.Is(err, bili_archiver.ErrInvalidVideoID) {
			log.Errorw("video ID is invalid, not recording for retry", zap.Error(err))
		} else if lerr := p.config.Ledger.Record(videoID); lerr != nil {
			log.Errorw("failed to record video in ledger", zap.Error(lerr))
		}
		p.events.Send(TaskFailed{taskEvent{task}, err})
	} else {
		task.setStatus(TaskStatusDone)
		log.Infow("video archived", "path", libraryPath)
		p.events.Send(TaskCompleted{taskEvent{task}, libraryPath})
	}

	if p.config.Database != nil {
		state := task.State()
		run.Title = state.Title
		run.Status = string(state.Status)
		run.Error = state.Error
		run.FinishedAt = state.FinishedAt
		if err := p.config.Database.UpdateRun(run); err != nil {
			log.Warnw("failed to update run", zap.Error(err))
		}
	}
	return err
}

// run performs the pipeline stages, returning the final library path of the
// item.
func (p *Processor) run(ctx context.Context, task *Task) (string, error) {
	videoID := task.State().VideoID

	// Stage 1: metadata (before any filesystem work, so an invalid ID leaves
	// no trace behind)
	item, err := p.config.Platform.GetVideoInfo(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("fetching video info: %w", err)
	}
	task.update(func(s *TaskState) {
		s.Title = item.Title
		s.Status = TaskStatusInfoFetched
	})

	work, err := newStaging(p.config.TempDir)
	if err != nil {
		return "", fmt.Errorf("creating staging area: %w", err)
	}
	defer work.Close(ctx)

	// Stage 2: streams
	streams, err := p.config.Platform.GetStreamURLs(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("resolving stream urls: %w", err)
	}
	videoPath := work.Path("video.m4s")
	audioPath := work.Path("audio.m4s")
	if !p.config.Fetcher.Fetch(ctx, streams.Video, videoPath) {
		return "", fmt.Errorf("downloading video stream failed")
	}
	if !p.config.Fetcher.Fetch(ctx, streams.Audio, audioPath) {
		return "", fmt.Errorf("downloading audio stream failed")
	}
	task.setStatus(TaskStatusMediaDownloaded)

	// Stage 3: mux
	folder := item.FolderName()
	itemDir, err := work.Mkdir("item", folder)
	if err != nil {
		return "", fmt.Errorf("creating item dir: %w", err)
	}
	if err := p.config.Muxer.Mux(ctx, videoPath, audioPath, filepath.Join(itemDir, folder+".mp4")); err != nil {
		return "", fmt.Errorf("muxing streams: %w", err)
	}
	task.setStatus(TaskStatusMuxed)

	// Stage 4: item metadata
	if err := writeNFO(filepath.Join(itemDir, folder+".nfo"), nfo.ItemFromVideo(item)); err != nil {
		return "", fmt.Errorf("writing item nfo: %w", err)
	}
	if item.CoverURL != "" {
		if !p.config.Fetcher.Fetch(ctx, item.CoverURL, filepath.Join(itemDir, "poster.jpg")) {
			return "", fmt.Errorf("downloading poster failed")
		}
	}
	task.setStatus(TaskStatusItemMetadataWritten)

	// Stage 5: cast
	pref, err := p.config.Host.GetCastPreference(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching cast preference: %w", err)
	}
	if pref.Enabled {
		if err := p.stageCast(ctx, work, item, pref.PersonsRoot); err != nil {
			return "", fmt.Errorf("processing cast: %w", err)
		}
	}
	task.setStatus(TaskStatusCastProcessed)

	// Stage 6: relocate into the library
	paths, err := p.config.Host.GetMediaPaths(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching media paths: %w", err)
	}
	mediaRoot, err := bili_archiver.SelectMediaPath(paths)
	if err != nil {
		return "", err
	}
	libraryPath, err := library.RelocateItem(itemDir, mediaRoot, folder)
	if err != nil {
		return "", err
	}
	task.setStatus(TaskStatusRelocated)

	// Stage 7: notify
	if err := p.notify(ctx, item); err != nil {
		return "", fmt.Errorf("sending notifications: %w", err)
	}
	task.setStatus(TaskStatusNotified)

	return libraryPath, nil
}

// stageCast writes per-person directories (person.nfo plus avatar) into the
// staging area, then relocates them into the people tree.
func (p *Processor) stageCast(ctx context.Context, work *staging, item *bili_archiver.VideoItem, personsRoot string) error {
	personsDir, err := work.Mkdir("persons")
	if err != nil {
		return err
	}
	for _, m := range item.Cast() {
		dir, err := work.Mkdir("persons", util.SanitizeFilename(m.Name))
		if err != nil {
			return err
		}
		if err := writeNFO(filepath.Join(dir, "person.nfo"), nfo.PersonFromCast(m)); err != nil {
			return err
		}
		if m.AvatarURL != "" {
			if !p.config.Fetcher.Fetch(ctx, m.AvatarURL, filepath.Join(dir, "folder.jpg")) {
				return fmt.Errorf("downloading avatar for %q failed", m.Name)
			}
		}
	}
	return library.RelocateCast(personsDir, personsRoot)
}

func (p *Processor) notify(ctx context.Context, item *bili_archiver.VideoItem) error {
	title := fmt.Sprintf("%s 已入库", item.Title)
	body := fmt.Sprintf("%s\nUP主: %s | %s | %d 分钟 | %s",
		truncate(item.Description, 100), item.Owner.Name, item.PremiereDate(), item.RuntimeMinutes(), item.Category)
	if err := p.config.Host.SendTemplatedNotification(ctx, bili_archiver.Notification{
		Title:     title,
		Body:      body,
		LinkURL:   p.config.VideoLinkBase + item.ID,
		PosterURL: item.CoverURL,
	}); err != nil {
		return err
	}
	return p.config.Host.SendSystemNotification(ctx, title, body)
}

// RetryFailed re-processes videos from the failure ledger, oldest first, up
// to the configured batch limit; the rest stay in the ledger for the next
// batch. Each retried ID is cleared from the ledger before processing, so a
// repeat failure re-records it.
func (p *Processor) RetryFailed(ctx context.Context) error {
	log := bili_archiver.Logger(ctx).Sugar().Named("pipeline")
	ids, err := p.config.Ledger.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		log.Infow("no failed videos to retry")
		return nil
	}
	if len(ids) > p.config.RetryLimit {
		log.Infow("limiting retry batch", "total", len(ids), "limit", p.config.RetryLimit)
		ids = ids[:p.config.RetryLimit]
	}

	var errs *multierror.Error
	results := make([]<-chan error, 0, len(ids))
	for _, id := range ids {
		if err := p.config.Ledger.Clear(id); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		id := id
		results = append(results, async.Run(func() error {
			return p.Process(ctx, id)
		}))
	}
	for _, result := range results {
		if err := <-result; err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// truncate limits s to max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func writeNFO(path string, doc interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nfo.Write(file, doc); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
