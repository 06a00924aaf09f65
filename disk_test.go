package boardloop_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veartutop/boardloop"
)

func newDisk(t *testing.T, cfg boardloop.DiskConfig) *boardloop.Disk {
	t.Helper()

	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}

	if cfg.DeleteExpiredJobInterval == 0 {
		cfg.DeleteExpiredJobInterval = -1
	}

	dc, err := boardloop.NewDisk(cfg)
	require.NoError(t, err)

	t.Cleanup(dc.Close)

	return dc
}

func cacheFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	files := make([]string, 0, len(entries))

	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".cache" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	return files
}

func TestDisk(t *testing.T) {
	ctx := context.Background()
	dc := newDisk(t, boardloop.DiskConfig{Name: "test", TimeToLive: time.Minute})

	_, err := dc.Read(ctx, "key")
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())

	require.NoError(t, dc.Write(ctx, "key", []byte("payload")))

	val, err := dc.Read(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)
}

func TestDisk_reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	dc := newDisk(t, boardloop.DiskConfig{Dir: dir, TimeToLive: time.Minute})
	require.NoError(t, dc.Write(ctx, "key", []byte("payload")))

	dc2 := newDisk(t, boardloop.DiskConfig{Dir: dir, TimeToLive: time.Minute})

	val, err := dc2.Read(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)
}

func TestDisk_expiry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dc := newDisk(t, boardloop.DiskConfig{Dir: dir})

	require.NoError(t, dc.Write(boardloop.WithTTL(ctx, 10*time.Millisecond), "key", []byte("v")))

	val, err := dc.Read(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	time.Sleep(15 * time.Millisecond)

	// Expired entry is evicted as a side effect of the read.
	val, err = dc.Read(ctx, "key")
	assert.Equal(t, []byte("v"), val)
	assert.EqualError(t, err, boardloop.ErrExpiredCacheItem.Error())

	assert.Empty(t, cacheFiles(t, dir))

	_, err = dc.Read(ctx, "key")
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())
}

func TestDisk_corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dc := newDisk(t, boardloop.DiskConfig{Dir: dir, TimeToLive: time.Minute})

	require.NoError(t, dc.Write(ctx, "key", []byte("payload")))

	files := cacheFiles(t, dir)
	require.Len(t, files, 1)
	require.NoError(t, os.WriteFile(files[0], []byte("garbage"), 0o600))

	// Corrupt entry reads as a miss and is evicted.
	_, err := dc.Read(ctx, "key")
	assert.EqualError(t, err, boardloop.ErrCorruptCacheItem.Error())
	assert.Empty(t, cacheFiles(t, dir))

	_, err = dc.Read(ctx, "key")
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())
}

func TestDisk_byteValuesOnly(t *testing.T) {
	dc := newDisk(t, boardloop.DiskConfig{})

	assert.Error(t, dc.Write(context.Background(), "key", 123))
}

func TestDisk_concurrentSameKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dc := newDisk(t, boardloop.DiskConfig{Dir: dir, TimeToLive: time.Minute})

	var wg sync.WaitGroup

	// Same-key writers are serialized, readers never observe a partial entry.
	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				assert.NoError(t, dc.Write(ctx, "key", []byte("payload")))

				val, err := dc.Read(ctx, "key")
				if assert.NoError(t, err) {
					assert.Equal(t, []byte("payload"), val)
				}
			}
		}()
	}

	wg.Wait()
	assert.Len(t, cacheFiles(t, dir), 1)
}

func TestDisk_skipRead(t *testing.T) {
	ctx := context.Background()
	dc := newDisk(t, boardloop.DiskConfig{TimeToLive: time.Minute})

	require.NoError(t, dc.Write(ctx, "key", []byte("v")))

	_, err := dc.Read(boardloop.WithSkipRead(ctx), "key")
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())
}
