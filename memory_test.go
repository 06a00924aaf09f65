package boardloop_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/stretchr/testify/assert"
	"github.com/veartutop/boardloop"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory(boardloop.MemoryConfig{
		Name:                     "test",
		Logger:                   ctxd.NoOpLogger{},
		Stats:                    &stats.TrackerMock{},
		TimeToLive:               10 * time.Millisecond,
		ExpirationJitter:         -1,
		DeleteExpiredJobInterval: -1,
	})
	defer mc.Close()

	val, err := mc.Read(ctx, "key")
	assert.Nil(t, val)
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())

	err = mc.Write(ctx, "key", 123)
	assert.NoError(t, err)

	val, err = mc.Read(ctx, "key")
	assert.Equal(t, 123, val)
	assert.NoError(t, err)

	// Expired entry is evicted as a side effect of the read.
	time.Sleep(15 * time.Millisecond)

	val, err = mc.Read(ctx, "key")
	assert.Equal(t, 123, val)
	assert.EqualError(t, err, boardloop.ErrExpiredCacheItem.Error())

	val, err = mc.Read(ctx, "key")
	assert.Nil(t, val)
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())
	assert.Equal(t, 0, mc.Len())
}

func TestMemory_ttlBoundary(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory(boardloop.MemoryConfig{
		ExpirationJitter:         -1,
		DeleteExpiredJobInterval: -1,
	})
	defer mc.Close()

	assert.NoError(t, mc.Write(boardloop.WithTTL(ctx, 60*time.Millisecond), "key", "v"))

	// Just before createdAt+ttl the entry is present.
	time.Sleep(20 * time.Millisecond)

	val, err := mc.Read(ctx, "key")
	assert.NoError(t, err)
	assert.Equal(t, "v", val)

	// Just after createdAt+ttl it is absent.
	time.Sleep(60 * time.Millisecond)

	_, err = mc.Read(ctx, "key")
	assert.Error(t, err)
}

func TestMemory_skipWrite(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory()

	defer mc.Close()

	assert.NoError(t, mc.Write(boardloop.WithTTL(ctx, boardloop.SkipWriteTTL), "key", 1))
	assert.Equal(t, 0, mc.Len())
}

func TestMemory_skipRead(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory()

	defer mc.Close()

	assert.NoError(t, mc.Write(ctx, "key", 1))

	_, err := mc.Read(boardloop.WithSkipRead(ctx), "key")
	assert.EqualError(t, err, boardloop.ErrCacheItemNotFound.Error())
}

func TestMemory_expireAll(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory(boardloop.MemoryConfig{
		TimeToLive:               time.Minute,
		ExpirationJitter:         -1,
		DeleteExpiredJobInterval: -1,
	})
	defer mc.Close()

	for i := 0; i < 10; i++ {
		assert.NoError(t, mc.Write(ctx, strconv.Itoa(i), i))
	}

	assert.Equal(t, 10, mc.Len())

	mc.ExpireAll()
	time.Sleep(time.Millisecond)

	for i := 0; i < 10; i++ {
		_, err := mc.Read(ctx, strconv.Itoa(i))
		assert.EqualError(t, err, boardloop.ErrExpiredCacheItem.Error())
	}

	mc.RemoveAll()
	assert.Equal(t, 0, mc.Len())
}

func TestMemory_walk(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory(boardloop.MemoryConfig{TimeToLive: time.Minute})

	defer mc.Close()

	for i := 0; i < 50; i++ {
		assert.NoError(t, mc.Write(ctx, strconv.Itoa(i), i))
	}

	n, err := mc.Walk(func(_ string, _ boardloop.Entry) error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestMemory_concurrentUnrelatedKeys(t *testing.T) {
	ctx := context.Background()
	mc := boardloop.NewMemory(boardloop.MemoryConfig{TimeToLive: time.Minute})

	defer mc.Close()

	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			k := "key" + strconv.Itoa(i)

			for j := 0; j < 100; j++ {
				assert.NoError(t, mc.Write(ctx, k, j))

				val, err := mc.Read(ctx, k)
				assert.NoError(t, err)
				assert.Equal(t, j, val)
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 32, mc.Len())
}
