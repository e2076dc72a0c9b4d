package job

import (
	"context"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/save"
	"github.com/mircov/lessongrab/internal/sync_"
)

// A DownloadJob is the runtime entity for one active download. The registry
// exclusively owns it for its lifetime; it is never persisted.
type DownloadJob struct {
	Identity lessongrab.MediaIdentity
	Kind     lessongrab.SourceKind

	ctx       context.Context
	ctxCancel context.CancelFunc
	cancelled sync_.Event
	saveID    *sync_.Mutexed[save.SaveID]
}

func newDownloadJob(ctx context.Context, identity lessongrab.MediaIdentity, kind lessongrab.SourceKind) *DownloadJob {
	ctx, cancel := context.WithCancel(ctx)
	return &DownloadJob{
		Identity:  identity,
		Kind:      kind,
		ctx:       ctx,
		ctxCancel: cancel,
		saveID:    sync_.NewMutexed(save.SaveID("")),
	}
}

// Context is the job's cancellable context, propagated into every fetch and
// backoff sleep.
func (j *DownloadJob) Context() context.Context {
	return j.ctx
}

// Cancel flips the cancelled flag and aborts the context. Idempotent.
func (j *DownloadJob) Cancel() {
	j.cancelled.Set()
	j.ctxCancel()
}

// IsCancelled returns true once Cancel has been called.
func (j *DownloadJob) IsCancelled() bool {
	return j.cancelled.IsSet()
}

func (j *DownloadJob) SaveID() save.SaveID {
	return j.saveID.Get()
}

func (j *DownloadJob) setSaveID(id save.SaveID) {
	j.saveID.Set(id)
}
