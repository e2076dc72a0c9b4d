package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/diff/v3"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/async"
	"github.com/mircov/lessongrab/internal/fetch"
	"github.com/mircov/lessongrab/internal/job"
	"github.com/mircov/lessongrab/internal/save"
	"github.com/mircov/lessongrab/internal/store"
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

	app := &cli.App{
		Name:  "lessongrab",
		Usage: "resolve and download videos from playlist, manifest, or player-page URLs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Value: ".",
				Usage: "save downloaded video to `DIR`",
			},
			&cli.StringFlag{
				Name:  "status-db",
				Usage: "persist download statuses to `FILE`",
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "send `KEY=VALUE` on every request (repeatable)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "use `TITLE` as the output filename stem",
			},
			&cli.StringFlag{
				Name:  "referrer",
				Usage: "referring page `URL` to mine for an embedded player",
			},
			&cli.StringFlag{
				Name:  "player-page",
				Usage: "explicit player page `URL` for the video-only fallback",
			},
			&cli.BoolFlag{
				Name:  "list",
				Usage: "list stored download statuses and exit (needs --status-db)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("list") {
				return listStatuses(c.String("status-db"))
			}
			if c.NArg() == 0 {
				return cli.Exit("no source URLs given", 1)
			}
			d, err := newDownloader(c)
			if err != nil {
				return err
			}
			defer d.Close()
			for _, source := range c.Args().Slice() {
				if err := d.download(ctx, source); err != nil {
					return err
				}
			}
			return nil
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
		if err != nil {
			logger.Fatal(err.Error())
		}
	}
}

type downloader struct {
	registry *job.Registry
	saver    *save.DiskSaver
	statuses *store.StatusStore
	title    string
	opts     job.StartOptions
}

func newDownloader(c *cli.Context) (*downloader, error) {
	headers, err := parseHeaders(c.StringSlice("header"))
	if err != nil {
		return nil, err
	}
	clientConfig := fetch.DefaultHTTPClientConfig
	clientConfig.Headers = headers
	client, err := fetch.NewHTTPClient(clientConfig)
	if err != nil {
		return nil, err
	}
	saver, err := save.NewDiskSaver(c.String("target"))
	if err != nil {
		return nil, err
	}
	registry, err := job.New(job.Config{
		Client: client,
		Saver:  saver,
		Fetch:  fetch.DefaultSegmentFetcherConfig,
	}, context.Background())
	if err != nil {
		return nil, err
	}
	d := &downloader{
		registry: registry,
		saver:    saver,
		title:    c.String("title"),
		opts: job.StartOptions{
			PlayerPageURL:    c.String("player-page"),
			ReferringPageURL: c.String("referrer"),
		},
	}
	if path := c.String("status-db"); path != "" {
		if d.statuses, err = store.Open(path); err != nil {
			registry.Close()
			return nil, err
		}
		registry.AddSink(d.statuses)
	}
	return d, nil
}

func (d *downloader) Close() {
	d.registry.Close()
	d.saver.Wait()
	if d.statuses != nil {
		d.statuses.Close()
	}
}

func (d *downloader) download(ctx context.Context, source string) error {
	logger := zap.S()
	logger.Infof("Downloading from %s", source)

	classification, err := lessongrab.Classify(source)
	if err != nil {
		return err
	}
	events, err := d.registry.SubscribeIdentity(classification.Identity)
	if err != nil {
		return err
	}
	defer events.Close()

	status, identity, err := d.registry.Start(source, d.title, &d.opts)
	if err != nil {
		return err
	}
	if status == job.StartDuplicate {
		logger.Infof("Already downloading %s", identity)
		return nil
	}

	var record job.StatusRecord
	record.Identity = identity
	bar := progressbar.Default(1, "downloading")
	var wg sync.WaitGroup
	done := make(chan job.StatusPatch, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range events.Receive() {
			old := record
			record.Apply(event.Patch, time.Now())
			logChanges(logger, old, record)
			if event.Patch.SegmentCount > 0 && int64(event.Patch.SegmentCount) != bar.GetMax64() {
				bar.ChangeMax(event.Patch.SegmentCount)
			}
			if strings.HasPrefix(event.Patch.Message, "downloading segment") {
				_ = bar.Add(1)
			}
			if event.Patch.State.IsTerminal() {
				done <- event.Patch
				return
			}
		}
	}()

	var final job.StatusPatch
	select {
	case final = <-done:
	case <-ctx.Done():
		d.registry.Cancel(identity)
		final = <-done
	}
	wg.Wait()
	_ = bar.Finish()

	switch final.State {
	case job.StateSuccess:
		logger.Infof("Download complete: %s", final.Filename)
		return nil
	case job.StateCancelled:
		logger.Info("Download cancelled")
		return nil
	default:
		if final.RemuxCommand != "" {
			logger.Warnf("Separate audio and video streams; run: %s", final.RemuxCommand)
			return nil
		}
		return fmt.Errorf("download failed: %s", final.Error)
	}
}

func logChanges(logger *zap.SugaredLogger, old job.StatusRecord, updated job.StatusRecord) {
	changes, err := diff.Diff(old, updated)
	if err != nil {
		logger.Errorf("failed to diff old and new download status: %v", err)
		return
	}
	for _, change := range changes {
		logger.Debugf("%v: %#v -> %#v", change.Path, change.From, change.To)
	}
}

func listStatuses(path string) error {
	if path == "" {
		return cli.Exit("--list requires --status-db", 1)
	}
	statuses, err := store.Open(path)
	if err != nil {
		return err
	}
	defer statuses.Close()
	records, err := statuses.ListStatuses()
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Printf("%-40s %-16s %s\n", record.Identity, record.State, record.Filename)
	}
	return nil
}

func parseHeaders(pairs []string) (http.Header, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(http.Header)
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected KEY=VALUE", pair)
		}
		headers.Add(key, value)
	}
	return headers, nil
}
