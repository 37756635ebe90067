package vdoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parentURI = "file:///home/u/report.qmd"

func TestTempFileStore_Materialize(t *testing.T) {
	store := NewTempFileStore(t.TempDir())
	ctx := context.Background()

	path, err := store.Materialize(ctx, parentURI, "python", "py", "x = 1")
	require.NoError(t, err)
	assert.Equal(t, "python.py", filepath.Base(path))
	assert.Len(t, filepath.Base(filepath.Dir(path)), 16)
	assert.Equal(t, store.Path(parentURI, "python", "py"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(data))

	// Every call rewrites.
	again, err := store.Materialize(ctx, parentURI, "python", "py", "x = 2")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 2", string(data))

	// No staging files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTempFileStore_DistinctKeys(t *testing.T) {
	store := NewTempFileStore(t.TempDir())

	a := store.Path("file:///a.qmd", "python", "py")
	b := store.Path("file:///b.qmd", "python", "py")
	c := store.Path("file:///a.qmd", "r", "r")

	assert.NotEqual(t, filepath.Dir(a), filepath.Dir(b))
	assert.Equal(t, filepath.Dir(a), filepath.Dir(c))
	assert.NotEqual(t, a, c)
}

func TestTempFileStore_ConcurrentWrites(t *testing.T) {
	store := NewTempFileStore(t.TempDir())
	ctx := context.Background()

	const writers = 16
	contents := make(map[string]bool, writers)
	for i := range writers {
		contents[fmt.Sprintf("value = %d\n%s", i, string(make([]byte, 4096)))] = true
	}

	path := store.Path(parentURI, "python", "py")
	stop := make(chan struct{})
	torn := make(chan string, 1)

	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if !contents[string(data)] {
				select {
				case torn <- string(data):
				default:
				}
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for content := range contents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Materialize(ctx, parentURI, "python", "py", content)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	select {
	case data := <-torn:
		t.Fatalf("observed torn write of %d bytes", len(data))
	default:
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, contents[string(data)])
}

func TestTempFileStore_CancelledContext(t *testing.T) {
	store := NewTempFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Materialize(ctx, parentURI, "python", "py", "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTempFileStore_WriteFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o644))

	_, err := NewTempFileStore(root).Materialize(context.Background(), parentURI, "python", "py", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create virtual document directory")
}

func TestTempFileStore_RemoveAndClose(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vdoc")
	store := NewTempFileStore(root)
	ctx := context.Background()

	a, err := store.Materialize(ctx, "file:///a.qmd", "python", "py", "a")
	require.NoError(t, err)
	b, err := store.Materialize(ctx, "file:///b.qmd", "r", "r", "b")
	require.NoError(t, err)

	require.NoError(t, store.Remove("file:///a.qmd"))
	assert.NoFileExists(t, a)
	assert.FileExists(t, b)

	// Removing an unknown parent is not an error.
	require.NoError(t, store.Remove("file:///never.qmd"))

	require.NoError(t, store.Close())
	assert.NoDirExists(t, root)
}

func TestNewTempFileStore_DefaultRoot(t *testing.T) {
	store := NewTempFileStore("")
	assert.Equal(t, filepath.Join(os.TempDir(), DefaultTempDirName), store.Root())
}
