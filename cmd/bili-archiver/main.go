package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/r3labs/diff/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	bili_archiver "bili-archiver"
	"bili-archiver/async"
	"bili-archiver/bilibili"
	"bili-archiver/database"
	"bili-archiver/internal/ledger"
	"bili-archiver/internal/mux"
	"bili-archiver/internal/pipeline"
	"bili-archiver/internal/pubsub"
	"bili-archiver/internal/seendb"
	"bili-archiver/mrserver"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = bili_archiver.WithLogger(ctx, logger)

	app := &cli.App{
		Name:  "bili-archiver",
		Usage: "archive bilibili videos into a media library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sessdata",
				Usage:   "bilibili session cookie (SESSDATA)",
				EnvVars: []string{"BILI_SESSDATA"},
			},
			&cli.StringFlag{
				Name:    "bili-jct",
				Usage:   "bilibili CSRF cookie (bili_jct)",
				EnvVars: []string{"BILI_JCT"},
			},
			&cli.StringFlag{
				Name:    "buvid3",
				Usage:   "bilibili device cookie (buvid3)",
				EnvVars: []string{"BILI_BUVID3"},
			},
			&cli.StringFlag{
				Name:    "mr-url",
				Value:   "http://127.0.0.1:1329",
				Usage:   "base `URL` of the media server management API",
				EnvVars: []string{"MR_URL"},
			},
			&cli.StringFlag{
				Name:    "mr-access-key",
				Usage:   "access key for the media server management API",
				EnvVars: []string{"MR_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:  "ledger",
				Value: "failed_videos.txt",
				Usage: "`FILE` recording failed video IDs for retry",
			},
			&cli.StringFlag{
				Name:  "database",
				Value: "bili-archiver.sqlite3",
				Usage: "run history database `FILE` (empty disables history)",
			},
			&cli.StringFlag{
				Name:  "temp-dir",
				Usage: "base `DIR` for staging areas (default: system temp dir)",
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Value: "ffmpeg",
				Usage: "ffmpeg executable `PATH`",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Value: true,
				Usage: "show download progress bars",
			},
		},
		Commands: []*cli.Command{
			processCommand(ctx),
			retryCommand(ctx),
			watchCommand(ctx),
			failedCommand(),
			historyCommand(),
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		stop()
		err = <-result
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal(err.Error())
		}
	}
}

// env bundles everything a pipeline command needs, built from the global
// flags.
type env struct {
	processor *pipeline.Processor
	platform  *bilibili.Client
	db        *database.Database
}

func newEnv(c *cli.Context) (*env, error) {
	credential := bili_archiver.Credential{
		SessData: c.String("sessdata"),
		BiliJCT:  c.String("bili-jct"),
		BUVID3:   c.String("buvid3"),
	}
	platform := bilibili.NewClient(credential)
	host := mrserver.NewClient(c.String("mr-url"), c.String("mr-access-key"))

	header := http.Header{}
	for k, v := range platform.FetchHeaders() {
		header.Set(k, v)
	}
	fetcherOpts := []bili_archiver.FetcherOption{bili_archiver.WithHeader(header)}
	if c.Bool("progress") {
		reporter := &progressReporter{}
		fetcherOpts = append(fetcherOpts, bili_archiver.WithProgress(reporter.report))
	}

	e := &env{platform: platform}
	if path := c.String("database"); path != "" {
		db, err := database.NewDatabase(path, zap.L())
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		e.db = db
	}

	pipelineConfig := pipeline.Config{
		Platform: platform,
		Host:     host,
		Fetcher:  bili_archiver.NewFetcher(fetcherOpts...),
		Muxer:    &mux.FFmpeg{Binary: c.String("ffmpeg")},
		Ledger:   ledger.New(c.String("ledger")),
		TempDir:  c.String("temp-dir"),
		// Only the retry command defines the flag; elsewhere this is 0 and the
		// processor applies its default.
		RetryLimit: c.Int("limit"),
	}
	if e.db != nil {
		pipelineConfig.Database = e.db
	}
	e.processor = pipeline.NewProcessor(pipelineConfig)
	return e, nil
}

func (e *env) close() {
	e.processor.Close()
	if e.db != nil {
		e.db.Close()
	}
}

// watchEvents logs task lifecycle events until the publisher closes.
func watchEvents(wg *sync.WaitGroup, events pubsub.ReceiverCloser[pipeline.Event]) {
	logger := zap.S()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range events.Receive() {
			switch e := event.(type) {
			case pipeline.TaskAdded:
				logger.Infof("task added: %v", e.Task())
			case pipeline.TaskUpdated:
				changes, err := diff.Diff(e.OldState, e.NewState)
				if err != nil {
					logger.Errorf("failed to diff old and new task state: %v", err)
				} else {
					for _, change := range changes {
						logger.Debugf("%v: %#v -> %#v", change.Path, change.From, change.To)
					}
				}
			case pipeline.TaskCompleted:
				logger.Infof("archived %v to %v", e.Task().State().VideoID, e.LibraryPath)
			case pipeline.TaskFailed:
				logger.Warnf("task failed: %v: %v", e.Task(), e.Err)
			}
		}
	}()
}

func processCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "archive one or more videos by ID",
		ArgsUsage: "VIDEO_ID [VIDEO_ID...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("no video IDs given", 1)
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			events, err := e.processor.Subscribe()
			if err != nil {
				return err
			}
			var wg sync.WaitGroup
			watchEvents(&wg, events)

			var errs *multierror.Error
			for _, id := range c.Args().Slice() {
				if err := e.processor.Process(ctx, id); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
			e.processor.Close()
			wg.Wait()
			return errs.ErrorOrNil()
		},
	}
}

func retryCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "re-process a batch of previously failed videos",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: pipeline.DefaultRetryLimit,
				Usage: "maximum `N` videos per batch",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			events, err := e.processor.Subscribe()
			if err != nil {
				return err
			}
			var wg sync.WaitGroup
			watchEvents(&wg, events)

			err = e.processor.RetryFailed(ctx)
			e.processor.Close()
			wg.Wait()
			return err
		},
	}
}

func watchCommand(ctx context.Context) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "poll creators for new uploads and archive them",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{
				Name:     "creator",
				Usage:    "creator account `ID` to watch (repeatable)",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: pipeline.DefaultWatchInterval,
				Usage: "poll interval",
			},
			&cli.StringFlag{
				Name:  "seen-db",
				Value: "seen.db",
				Usage: "`FILE` tracking already-handled uploads",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			db, err := seendb.New(c.String("seen-db"))
			if err != nil {
				return err
			}
			defer db.Close()

			// A long-running watch would otherwise flood the log with
			// per-stage state diffs.
			events, err := e.processor.SubscribeFiltered(func(event pipeline.Event) bool {
				_, isUpdate := event.(pipeline.TaskUpdated)
				return !isUpdate
			})
			if err != nil {
				return err
			}
			var wg sync.WaitGroup
			watchEvents(&wg, events)
			defer wg.Wait()
			defer e.processor.Close()

			watcher := pipeline.NewWatcher(pipeline.WatchConfig{
				Creators: c.Int64Slice("creator"),
				Interval: c.Duration("interval"),
				SeenDB:   db,
			}, e.platform, e.processor)
			if err := watcher.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func failedCommand() *cli.Command {
	return &cli.Command{
		Name:  "failed",
		Usage: "list videos recorded as failed",
		Action: func(c *cli.Context) error {
			ids, err := ledger.New(c.String("ledger")).List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "show recent processing runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "maximum `N` runs to show",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("database")
			if path == "" {
				return cli.Exit("run history is disabled (no database)", 1)
			}
			db, err := database.NewDatabase(path, zap.L())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			runs, err := db.RecentRuns(c.Int("limit"))
			if err != nil {
				return err
			}
			for _, run := range runs {
				line := fmt.Sprintf("%s  %-12s  %-22s  %s",
					run.StartedAt.Local().Format(time.RFC3339), run.VideoID, run.Status, run.Title)
				if run.Error != "" {
					line += "  (" + run.Error + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

// progressReporter bridges fetch progress callbacks onto a terminal progress
// bar; each fetch starts a fresh bar.
type progressReporter struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (p *progressReporter) report(downloaded int, expected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if downloaded == 0 {
		p.bar = progressbar.DefaultBytes(int64(expected), "downloading")
		return
	}
	if p.bar != nil {
		_ = p.bar.Set(downloaded)
	}
}
