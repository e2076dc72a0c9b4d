package job

import (
	"time"

	"github.com/mircov/lessongrab"
)

// State is the lifecycle state of a download job. cancel_requested is an
// overlay observed while running; the loop turns it into cancelled once it
// unwinds.
type State string

const (
	StateUndefined       State = ""
	StateQueued          State = "queued"
	StateRunning         State = "running"
	StateCancelRequested State = "cancel_requested"
	StateSuccess         State = "success"
	StateError           State = "error"
	StateCancelled       State = "cancelled"
)

// IsTerminal returns true for states after which the job no longer exists in
// the registry.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// A StatusPatch is a partial update to a per-identity status record. Zero
// fields mean "unchanged"; the merge refreshes the record's timestamp.
type StatusPatch struct {
	State        State  `json:"state,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	Filename     string `json:"filename,omitempty"`
	SegmentCount int    `json:"segment_count,omitempty"`
	DownloadID   string `json:"download_id,omitempty"`
	DebugTrace   string `json:"debug_trace,omitempty"`
	RemuxCommand string `json:"remux_command,omitempty"`
}

// A StatusRecord is the merged per-identity status. It outlives the
// DownloadJob: the persistence collaborator owns it, the core only emits
// patches.
type StatusRecord struct {
	Identity     lessongrab.MediaIdentity `json:"identity"`
	State        State                    `json:"state"`
	Message      string                   `json:"message,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Filename     string                   `json:"filename,omitempty"`
	SegmentCount int                      `json:"segment_count,omitempty"`
	DownloadID   string                   `json:"download_id,omitempty"`
	DebugTrace   string                   `json:"debug_trace,omitempty"`
	RemuxCommand string                   `json:"remux_command,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Apply merges a patch into the record, refreshing its timestamp.
func (r *StatusRecord) Apply(patch StatusPatch, now time.Time) {
	if patch.State != StateUndefined {
		r.State = patch.State
	}
	if patch.Message != "" {
		r.Message = patch.Message
	}
	if patch.Error != "" {
		r.Error = patch.Error
	}
	if patch.Filename != "" {
		r.Filename = patch.Filename
	}
	if patch.SegmentCount != 0 {
		r.SegmentCount = patch.SegmentCount
	}
	if patch.DownloadID != "" {
		r.DownloadID = patch.DownloadID
	}
	if patch.DebugTrace != "" {
		r.DebugTrace = patch.DebugTrace
	}
	if patch.RemuxCommand != "" {
		r.RemuxCommand = patch.RemuxCommand
	}
	r.UpdatedAt = now
}

// An Event pairs an identity with the patch that was published for it.
type Event struct {
	Identity lessongrab.MediaIdentity
	Patch    StatusPatch
}

// StatusSink receives every published patch. Delivery is fire-and-forget: a
// failing sink is logged and never fails the job.
type StatusSink interface {
	Publish(identity lessongrab.MediaIdentity, patch StatusPatch) error
}
