// Package job drives one download pipeline per media identity: classify,
// resolve, fetch, assemble, hand off to the save collaborator, reporting
// status patches at every phase transition.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/fetch"
	"github.com/mircov/lessongrab/internal/pubsub"
	"github.com/mircov/lessongrab/internal/resolve"
	"github.com/mircov/lessongrab/internal/save"
	"github.com/mircov/lessongrab/internal/sync_"
)

type Config struct {
	// Client performs all text/binary fetches with ambient credentials.
	Client fetch.Client
	// Saver receives the assembled bytes of a finished download.
	Saver save.Saver
	// Fetch configures the per-segment retry/backoff behaviour.
	Fetch fetch.SegmentFetcherConfig
}

// StartOptions carry collaborator-scraped values for one job; all fields are
// best-effort and may be empty.
type StartOptions struct {
	EmbeddedSources  resolve.EmbeddedSources
	PlayerPageURL    string
	ReferringPageURL string
}

// StartStatus is the immediate outcome of a Start call.
type StartStatus string

const (
	StartAccepted  StartStatus = "accepted"
	StartDuplicate StartStatus = "duplicate"
)

type jobsByIdentity = map[lessongrab.MediaIdentity]*DownloadJob

// Registry enforces at most one active job per media identity. Jobs are
// inserted on start and removed when their pipeline terminates for any
// reason, so a stale "running" entry can never leak.
type Registry struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	jobs    *sync_.Mutexed[jobsByIdentity]
	events  pubsub.Publisher[Event]
	sinksMu sync.Mutex
	sinks   []StatusSink
	wg      sync.WaitGroup

	fetcher   *fetch.SegmentFetcher
	playlists *resolve.PlaylistResolver
	manifests *resolve.ManifestResolver
	players   *resolve.PlayerResolver
	fallback  *resolve.FallbackOrchestrator
}

func New(config Config, ctx context.Context) (*Registry, error) {
	if config.Client == nil {
		return nil, errors.New("job registry requires a fetch client")
	}
	if config.Saver == nil {
		return nil, errors.New("job registry requires a saver")
	}
	ctx, cancel := context.WithCancel(ctx)
	playlists := resolve.NewPlaylistResolver(config.Client)
	players := resolve.NewPlayerResolver(config.Client)
	r := &Registry{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("registry"),

		jobs:   sync_.NewMutexed(make(jobsByIdentity)),
		events: pubsub.NewPublisher[Event](),

		fetcher:   fetch.NewSegmentFetcher(config.Client, config.Fetch),
		playlists: playlists,
		manifests: resolve.NewManifestResolver(config.Client),
		players:   players,
		fallback:  resolve.NewFallbackOrchestrator(config.Client, playlists, players),
	}
	return r, nil
}

// Subscribe returns a receiver of every published status event.
func (r *Registry) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return r.events.Subscribe()
}

// SubscribeIdentity returns a receiver of just one identity's status events.
func (r *Registry) SubscribeIdentity(identity lessongrab.MediaIdentity) (pubsub.ReceiverCloser[Event], error) {
	ch := pubsub.NewChannel[Event](pubsub.DefaultSubscriberBufSize)
	sender := pubsub.NewFilteredSender[Event](ch, func(event Event) bool {
		return event.Identity == identity
	})
	if err := r.events.AddSubscriber(sender); err != nil {
		return nil, err
	}
	return ch, nil
}

// AddSink registers a fire-and-forget status sink.
func (r *Registry) AddSink(sink StatusSink) {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Close cancels every running job and waits for their pipelines to unwind.
func (r *Registry) Close() {
	r.ctxCancel()
	r.wg.Wait()
	r.events.Close()
}

// Start classifies the URL and launches its download pipeline. Starting an
// identity that already has a live job is a no-op reported as
// StartDuplicate. A URL that fails classification is rejected with an error
// wrapping lessongrab.ErrUnsupportedSource.
func (r *Registry) Start(url string, title string, opts *StartOptions) (StartStatus, lessongrab.MediaIdentity, error) {
	if opts == nil {
		opts = &StartOptions{}
	}
	classification, err := lessongrab.Classify(url)
	if err != nil {
		return "", "", err
	}
	identity := classification.Identity
	job := newDownloadJob(r.ctx, identity, classification.Kind)
	duplicate := false
	_ = r.jobs.Locked(func(jobs jobsByIdentity) error {
		if _, ok := jobs[identity]; ok {
			duplicate = true
		} else {
			jobs[identity] = job
		}
		return nil
	})
	if duplicate {
		job.Cancel()
		r.log.Infow("job already running", "identity", identity)
		return StartDuplicate, identity, nil
	}
	r.publish(identity, StatusPatch{State: StateQueued, Message: "queued"})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job, url, title, *opts)
	}()
	return StartAccepted, identity, nil
}

// Cancel requests cancellation of the identity's live job, aborting pending
// fetches/sleeps and any externally started save. Returns false (with no
// side effects) if no job is registered for the identity.
func (r *Registry) Cancel(identity lessongrab.MediaIdentity) bool {
	var job *DownloadJob
	_ = r.jobs.Locked(func(jobs jobsByIdentity) error {
		job = jobs[identity]
		return nil
	})
	if job == nil {
		return false
	}
	job.Cancel()
	if saveID := job.SaveID(); saveID != "" {
		// The saver treats unknown/finished IDs as success; anything else
		// is logged but must not fail the cancellation.
		if err := r.config.Saver.Cancel(saveID); err != nil {
			r.log.Warnw("failed to cancel external save", "identity", identity, "save_id", saveID, "error", err)
		}
	}
	r.publish(identity, StatusPatch{State: StateCancelRequested, Message: "cancellation requested"})
	return true
}

func (r *Registry) run(job *DownloadJob, url string, title string, opts StartOptions) {
	defer r.remove(job)
	log := r.log.With("identity", job.Identity)
	log.Infow("job started", "kind", job.Kind, "url", url)

	r.publish(job.Identity, StatusPatch{State: StateRunning, Message: "resolving source"})
	plan, err := r.resolvePlan(job, url, title, opts)
	if err != nil {
		r.finish(job, err)
		return
	}
	data, err := r.download(job, plan)
	if err != nil {
		r.finish(job, err)
		return
	}
	r.publish(job.Identity, StatusPatch{State: StateRunning, Message: "merging segments", SegmentCount: plan.SegmentCount})
	merged := bytes.Join(data, nil)
	if err := job.Context().Err(); err != nil {
		r.finish(job, err)
		return
	}
	filename := lessongrab.Filename(title, job.Identity, plan.Extension)
	saveID, err := r.config.Saver.Start(merged, filename)
	if err != nil {
		r.finish(job, fmt.Errorf("failed to start save: %w", err))
		return
	}
	job.setSaveID(saveID)
	log.Infow("job complete", "filename", filename, "segments", plan.SegmentCount, "bytes", len(merged))
	r.publish(job.Identity, StatusPatch{
		State:        StateSuccess,
		Message:      "download complete",
		Filename:     filename,
		SegmentCount: plan.SegmentCount,
		DownloadID:   string(saveID),
	})
}

func (r *Registry) resolvePlan(job *DownloadJob, url string, title string, opts StartOptions) (*resolve.Plan, error) {
	ctx := job.Context()
	switch job.Kind {
	case lessongrab.SourceDirectPlaylist:
		return r.playlists.Resolve(ctx, url)
	case lessongrab.SourceAdaptiveManifest:
		return r.resolveManifest(job, url, title, opts, "")
	case lessongrab.SourcePlayerPage:
		result, err := r.players.Resolve(ctx, url, resolve.PlayerOptions{})
		if err != nil {
			return nil, err
		}
		if result.ProgressiveURL != "" {
			return resolve.ProgressivePlan(result.ProgressiveURL), nil
		}
		return r.resolveManifest(job, result.ManifestURL, title, opts, url)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", lessongrab.ErrUnsupportedSource, job.Kind)
	}
}

// resolveManifest runs the adaptive-manifest resolver, escalating to the
// fallback cascade when the manifest turns out to be video-only.
func (r *Registry) resolveManifest(job *DownloadJob, manifestURL string, title string, opts StartOptions, playerPageURL string) (*resolve.Plan, error) {
	plan, err := r.manifests.Resolve(job.Context(), manifestURL)
	var remuxErr *lessongrab.NeedsRemuxError
	if !errors.As(err, &remuxErr) {
		return plan, err
	}
	r.publish(job.Identity, StatusPatch{
		State:      StateRunning,
		Message:    "manifest is video-only, trying fallback sources",
		DebugTrace: fmt.Sprintf("needs remux: %s", remuxErr.ManifestURL),
	})
	if opts.PlayerPageURL != "" {
		playerPageURL = opts.PlayerPageURL
	}
	return r.fallback.Resolve(job.Context(), resolve.FallbackInputs{
		ManifestURL:      manifestURL,
		OutputName:       lessongrab.Filename(title, job.Identity, "mp4"),
		Embedded:         opts.EmbeddedSources,
		PlayerPageURL:    playerPageURL,
		ReferringPageURL: opts.ReferringPageURL,
	})
}

// download fetches every chunk of the plan strictly in order, reporting
// (index, total) progress before each network fetch. Inline chunks (decoded
// init segments) cost no fetch.
func (r *Registry) download(job *DownloadJob, plan *resolve.Plan) ([][]byte, error) {
	total := len(plan.Chunks)
	data := make([][]byte, 0, total)
	for i, chunk := range plan.Chunks {
		if chunk.Inline() {
			data = append(data, chunk.Data)
			continue
		}
		r.publish(job.Identity, StatusPatch{
			State:        StateRunning,
			Message:      fmt.Sprintf("downloading segment %d/%d", i+1, total),
			SegmentCount: total,
		})
		segment, err := r.fetcher.Fetch(job.Context(), chunk.URL)
		if err != nil {
			return nil, err
		}
		data = append(data, segment)
	}
	return data, nil
}

// finish converts a pipeline error into the job's terminal status. This is
// the only place errors become user-visible.
func (r *Registry) finish(job *DownloadJob, err error) {
	if job.IsCancelled() || errors.Is(err, context.Canceled) {
		r.log.Infow("job cancelled", "identity", job.Identity)
		r.publish(job.Identity, StatusPatch{State: StateCancelled, Message: "download cancelled"})
		return
	}
	var remuxErr *lessongrab.RemuxRequiredError
	if errors.As(err, &remuxErr) {
		r.log.Infow("job needs external remux", "identity", job.Identity, "manifest", remuxErr.ManifestURL)
		r.publish(job.Identity, StatusPatch{
			State:        StateError,
			Message:      "separate audio and video streams, external remux required",
			Error:        remuxErr.Error(),
			Filename:     remuxErr.Filename,
			RemuxCommand: remuxErr.Command,
		})
		return
	}
	r.log.Warnw("job failed", "identity", job.Identity, "error", err)
	r.publish(job.Identity, StatusPatch{State: StateError, Message: "download failed", Error: err.Error()})
}

func (r *Registry) remove(job *DownloadJob) {
	_ = r.jobs.Locked(func(jobs jobsByIdentity) error {
		delete(jobs, job.Identity)
		return nil
	})
}

// publish delivers a patch to the event bus and every sink. Best-effort:
// sink failures are logged and swallowed.
func (r *Registry) publish(identity lessongrab.MediaIdentity, patch StatusPatch) {
	r.events.Send(Event{Identity: identity, Patch: patch})
	r.sinksMu.Lock()
	sinks := make([]StatusSink, len(r.sinks))
	copy(sinks, r.sinks)
	r.sinksMu.Unlock()
	for _, sink := range sinks {
		if err := sink.Publish(identity, patch); err != nil {
			r.log.Warnw("status sink delivery failed", "identity", identity, "error", err)
		}
	}
}
