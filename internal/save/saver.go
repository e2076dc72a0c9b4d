// Package save holds the external-save collaborator interface and its
// disk-backed default implementation.
package save

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mircov/lessongrab/internal/sync_"
)

// SaveID identifies one started save operation.
type SaveID string

// Saver is the collaborator that physically persists assembled bytes. Cancel
// must treat an unknown or already-finished ID as success, not an error.
type Saver interface {
	Start(data []byte, filename string) (SaveID, error)
	Cancel(id SaveID) error
}

type activeSaves = map[SaveID]context.CancelFunc

// DiskSaver writes files under a target directory, one goroutine per save,
// deleting the partial file if the save is cancelled mid-write.
type DiskSaver struct {
	dir    string
	active *sync_.Mutexed[activeSaves]
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

func NewDiskSaver(dir string) (*DiskSaver, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("failed to create target dir: %w", err)
	}
	return &DiskSaver{
		dir:    dir,
		active: sync_.NewMutexed(make(activeSaves)),
		log:    zap.S().Named("save"),
	}, nil
}

func (s *DiskSaver) Start(data []byte, filename string) (SaveID, error) {
	id := SaveID(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())
	_ = s.active.Locked(func(active activeSaves) error {
		active[id] = cancel
		return nil
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(id)
		if err := s.write(ctx, data, filename); err != nil {
			s.log.Warnw("save failed", "save_id", id, "filename", filename, "error", err)
		}
	}()
	return id, nil
}

// Cancel aborts an in-progress save. Unknown or finished IDs are a no-op.
func (s *DiskSaver) Cancel(id SaveID) error {
	var cancel context.CancelFunc
	_ = s.active.Locked(func(active activeSaves) error {
		cancel = active[id]
		return nil
	})
	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until all started saves have finished or been cancelled.
func (s *DiskSaver) Wait() {
	s.wg.Wait()
}

func (s *DiskSaver) forget(id SaveID) {
	_ = s.active.Locked(func(active activeSaves) error {
		if cancel, ok := active[id]; ok {
			cancel()
			delete(active, id)
		}
		return nil
	})
}

const writeChunkSize = 256 * 1024

func (s *DiskSaver) write(ctx context.Context, data []byte, filename string) error {
	targetPath := filepath.Join(s.dir, filename)
	f, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to open target file: %w", err)
	}
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			_ = f.Close()
			_ = os.Remove(targetPath)
			return err
		}
		n := writeChunkSize
		if n > len(data) {
			n = len(data)
		}
		if _, err := f.Write(data[:n]); err != nil {
			_ = f.Close()
			_ = os.Remove(targetPath)
			return fmt.Errorf("failed to write target file: %w", err)
		}
		data = data[n:]
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close target file: %w", err)
	}
	s.log.Debugw("saved file", "path", targetPath)
	return nil
}
