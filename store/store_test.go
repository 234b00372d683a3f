package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/parolam/breach-checker/models"
	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestClickHouseSchema(t *testing.T) {
	stmts := ClickHouseSchema("parolam")
	require.Len(t, stmts, 4)

	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS parolam", stmts[0])

	assert.Contains(t, stmts[1], "parolam.breach_metadata")
	assert.Contains(t, stmts[1], "ENGINE = MergeTree()")
	assert.Contains(t, stmts[1], "ORDER BY breach_id")

	assert.Contains(t, stmts[2], "parolam.password_leaks")
	assert.Contains(t, stmts[2], "hash_prefix     FixedString(6)")
	assert.Contains(t, stmts[2], "hash_suffix     FixedString(34)")
	assert.Contains(t, stmts[2], "ENGINE = SummingMergeTree()")
	assert.Contains(t, stmts[2], "ORDER BY (hash_prefix, hash_suffix)")

	assert.Contains(t, stmts[3], "parolam.email_leaks")
	assert.Contains(t, stmts[3], "ENGINE = ReplacingMergeTree(version)")
	assert.Contains(t, stmts[3], "ORDER BY (email_prefix, email_suffix, breach_id)")

	for _, s := range stmts[1:] {
		assert.True(t, strings.Contains(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("nil cache always misses", func(t *testing.T) {
		var c *Cache
		_, ok, err := c.GetRange(ctx, "ABCDEF")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, c.SetRange(ctx, "ABCDEF", nil))
		assert.Nil(t, NewCache(nil, time.Minute))
	})

	t.Run("range round trip and expiry", func(t *testing.T) {
		mr, rdb := newRedis(t)
		c := NewCache(rdb, time.Minute)

		_, ok, err := c.GetRange(ctx, "ABCDEF")
		require.NoError(t, err)
		assert.False(t, ok)

		rows := []models.SuffixCount{{Suffix: strings.Repeat("A", 34), Count: 3}}
		require.NoError(t, c.SetRange(ctx, "ABCDEF", rows))

		got, ok, err := c.GetRange(ctx, "ABCDEF")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, rows, got)

		mr.FastForward(2 * time.Minute)
		_, ok, err = c.GetRange(ctx, "ABCDEF")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stats", func(t *testing.T) {
		_, rdb := newRedis(t)
		c := NewCache(rdb, time.Minute)

		want := models.Stats{EmailCount: 10, PasswordCount: 9, BreachCount: 1}
		require.NoError(t, c.SetStats(ctx, want))
		got, ok, err := c.GetStats(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("invalidate ranges", func(t *testing.T) {
		mr, rdb := newRedis(t)
		c := NewCache(rdb, time.Minute)

		prefixes := make([]string, 0, delChunk+2)
		for i := 0; i < delChunk+2; i++ {
			p := fmt.Sprintf("%06X", i)
			prefixes = append(prefixes, p)
			require.NoError(t, c.SetRange(ctx, p, nil))
		}
		require.NoError(t, c.SetRange(ctx, "FFFFFF", nil))
		require.NoError(t, c.SetStats(ctx, models.Stats{BreachCount: 1}))

		require.NoError(t, c.InvalidateRanges(ctx, prefixes))
		for _, p := range prefixes {
			assert.False(t, mr.Exists("range:"+p), p)
		}
		assert.True(t, mr.Exists("range:FFFFFF"))
		assert.True(t, mr.Exists("stats"))

		var nilCache *Cache
		assert.NoError(t, nilCache.InvalidateRanges(ctx, prefixes))
	})
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb)

	unlock, err := l.Lock(ctx, "breach:Foo")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:breach:Foo"))

	t.Run("second writer waits until context ends", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err := l.Lock(tctx, "breach:Foo")
		assert.ErrorIs(t, err, ErrLockHeld)
	})

	unlock()
	assert.False(t, mr.Exists("lock:breach:Foo"))

	unlock, err = l.Lock(ctx, "breach:Foo")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb)

	unlock, err := l.Lock(ctx, "breach:Foo")
	require.NoError(t, err)

	// lock expired and was taken by another writer
	require.NoError(t, mr.Set("lock:breach:Foo", "someone-else"))
	unlock()

	v, err := mr.Get("lock:breach:Foo")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLockerReportsFailedRelease(t *testing.T) {
	var out bytes.Buffer
	pterm.SetDefaultOutput(&out)
	defer pterm.SetDefaultOutput(os.Stdout)

	mr, rdb := newRedis(t)
	unlock, err := NewRedisLocker(rdb).Lock(context.Background(), "breach:Foo")
	require.NoError(t, err)

	mr.Close()
	unlock()
	assert.Contains(t, out.String(), "releasing lock lock:breach:Foo failed")
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, err := l.Lock(ctx, "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, _ := l.Lock(ctx, "a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not acquired after release")
	}
}
