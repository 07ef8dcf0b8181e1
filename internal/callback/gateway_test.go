package callback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geotms/server/internal/tmserr"
)

func TestInvokeSuccess(t *testing.T) {
	g := New(Config{}, nil)
	data, err := g.Invoke(context.Background(), "ok", func(context.Context) ([]byte, error) {
		return []byte("png"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
}

func TestInvokeWrapsErrors(t *testing.T) {
	g := New(Config{}, nil)
	boom := errors.New("boom")

	_, err := g.Invoke(context.Background(), "fail", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	var re *tmserr.RenderError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, re.Stack)

	_, err = g.Invoke(context.Background(), "empty", func(context.Context) ([]byte, error) {
		return nil, nil
	})
	assert.ErrorAs(t, err, &re)

	_, err = g.Invoke(context.Background(), "miss", func(context.Context) ([]byte, error) {
		return nil, tmserr.ErrNotFound
	})
	assert.True(t, tmserr.IsNotFound(err))
	assert.False(t, errors.As(err, &re))
}

func TestInvokeRecoversPanic(t *testing.T) {
	g := New(Config{}, nil)
	_, err := g.Invoke(context.Background(), "panics", func(context.Context) ([]byte, error) {
		panic("bad tile")
	})
	var re *tmserr.RenderError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Error(), "bad tile")
	assert.NotEmpty(t, re.Stack)
}

func TestInvokeTimeout(t *testing.T) {
	g := New(Config{Timeout: 20 * time.Millisecond}, nil)
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := g.Invoke(context.Background(), "slow", func(context.Context) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	var re *tmserr.RenderError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvokeBoundsConcurrency(t *testing.T) {
	g := New(Config{MaxConcurrent: 2}, nil)
	var running, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Invoke(context.Background(), "worker", func(context.Context) ([]byte, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return []byte{1}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSharedGatewayRefcount(t *testing.T) {
	require.Zero(t, Refs())
	assert.Same(t, fallback, Current())

	a := Acquire(Config{MaxConcurrent: 1}, nil)
	b := Acquire(Config{MaxConcurrent: 9}, nil)
	assert.Same(t, a, b)
	assert.Same(t, a, Current())
	assert.Equal(t, 2, Refs())

	Release()
	assert.Same(t, a, Current())
	Release()
	assert.Zero(t, Refs())
	assert.Same(t, fallback, Current())

	Release()
	assert.Zero(t, Refs(), "extra releases are ignored")

	c := Acquire(Config{}, nil)
	assert.NotSame(t, a, c, "a released gateway is not revived")
	Release()
}
