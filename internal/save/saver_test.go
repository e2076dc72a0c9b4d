package save

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSaverWritesFile(t *testing.T) {
	dir := t.TempDir()
	saver, err := NewDiskSaver(dir)
	require.NoError(t, err)
	id, err := saver.Start([]byte("media bytes"), "lesson 123.ts")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	saver.Wait()
	data, err := os.ReadFile(filepath.Join(dir, "lesson 123.ts"))
	require.NoError(t, err)
	assert.Equal(t, []byte("media bytes"), data)
}

func TestDiskSaverCancelUnknownIDIsBenign(t *testing.T) {
	saver, err := NewDiskSaver(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, saver.Cancel(SaveID("no-such-save")))
}

func TestDiskSaverCancelFinishedIsBenign(t *testing.T) {
	saver, err := NewDiskSaver(t.TempDir())
	require.NoError(t, err)
	id, err := saver.Start([]byte("x"), "a.ts")
	require.NoError(t, err)
	saver.Wait()
	assert.NoError(t, saver.Cancel(id))
}
