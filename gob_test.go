package boardloop_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veartutop/boardloop"
)

func TestMemory_dumpRestore(t *testing.T) {
	ctx := context.Background()

	src := boardloop.NewMemory()
	defer src.Close()

	require.NoError(t, src.Write(ctx, "standings", []byte("1-2-3")))
	require.NoError(t, src.Write(ctx, "news", "headline"))
	require.NoError(t, src.Write(ctx, "scores", map[string]interface{}{"home": 2}))

	var buf bytes.Buffer

	n, err := src.Dump(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := boardloop.NewMemory()
	defer dst.Close()

	n, err = dst.Restore(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, err := dst.Read(ctx, "standings")
	require.NoError(t, err)
	assert.Equal(t, []byte("1-2-3"), v)

	v, err = dst.Read(ctx, "scores")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"home": 2}, v)

	assert.Equal(t, src.Len(), dst.Len())
}

func TestMemory_restoreKeepsExpiration(t *testing.T) {
	ctx := context.Background()

	src := boardloop.NewMemory(boardloop.MemoryConfig{
		TimeToLive:       5 * time.Millisecond,
		ExpirationJitter: -1,
	})
	defer src.Close()

	require.NoError(t, src.Write(ctx, "short-lived", 123))

	var buf bytes.Buffer

	_, err := src.Dump(&buf)
	require.NoError(t, err)

	dst := boardloop.NewMemory()
	defer dst.Close()

	_, err = dst.Restore(&buf)
	require.NoError(t, err)

	// The restored entry carries the original deadline, not a fresh TTL.
	time.Sleep(10 * time.Millisecond)

	_, err = dst.Read(ctx, "short-lived")
	assert.ErrorIs(t, err, boardloop.ErrExpiredCacheItem)
}

func TestMemory_restoreTruncatedDump(t *testing.T) {
	ctx := context.Background()

	src := boardloop.NewMemory()
	defer src.Close()

	require.NoError(t, src.Write(ctx, "standings", []byte("1-2-3")))

	var buf bytes.Buffer

	_, err := src.Dump(&buf)
	require.NoError(t, err)

	dst := boardloop.NewMemory()
	defer dst.Close()

	_, err = dst.Restore(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)
}
