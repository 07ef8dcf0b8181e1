// Package callback runs user render functions on behalf of tile requests.
//
// One Gateway is shared by every server in the process. Servers Acquire it
// when they bind and Release it when they unbind; the last Release tears
// it down.
package callback

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/geotms/server/internal/tmserr"
)

// Config tunes a Gateway.
type Config struct {
	// MaxConcurrent bounds callbacks running at once. Zero is unbounded.
	MaxConcurrent int
	// Timeout cancels a callback's context and abandons it. Zero waits
	// forever.
	Timeout time.Duration
}

// Func produces an encoded image.
type Func func(ctx context.Context) ([]byte, error)

// Gateway invokes callbacks, turning errors and panics into
// *tmserr.RenderError.
type Gateway struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a standalone gateway.
func New(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{timeout: cfg.Timeout, logger: logger}
	if cfg.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return g
}

// Invoke runs fn. name labels the callback in logs.
func (g *Gateway) Invoke(ctx context.Context, name string, fn Func) ([]byte, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, &tmserr.RenderError{Err: fmt.Errorf("waiting for a render slot: %w", err)}
		}
		defer g.sem.Release(1)
	}

	if g.timeout <= 0 {
		return g.call(ctx, name, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := g.call(ctx, name, fn)
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		g.logger.Warn("render callback abandoned", zap.String("callback", name), zap.Duration("timeout", g.timeout))
		return nil, &tmserr.RenderError{Err: fmt.Errorf("callback %s: %w", name, ctx.Err())}
	}
}

func (g *Gateway) call(ctx context.Context, name string, fn Func) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			g.logger.Error("render callback panicked",
				zap.String("callback", name),
				zap.Any("panic", r),
				zap.ByteString("stack", stack))
			data, err = nil, &tmserr.RenderError{Err: fmt.Errorf("callback %s panicked: %v", name, r), Stack: stack}
		}
	}()

	data, err = fn(ctx)
	switch {
	case err == nil && len(data) == 0:
		return nil, &tmserr.RenderError{Err: fmt.Errorf("callback %s returned no image", name)}
	case err == nil:
		return data, nil
	case tmserr.IsNotFound(err):
		return nil, err
	}
	var re *tmserr.RenderError
	if errors.As(err, &re) {
		return nil, err
	}
	return nil, &tmserr.RenderError{Err: fmt.Errorf("callback %s: %w", name, err)}
}

var (
	sharedMu   sync.Mutex
	shared     *Gateway
	sharedRefs int

	fallback = New(Config{}, nil)
)

// Acquire returns the process-wide gateway, creating it from cfg on the
// first call. Later calls share it and ignore cfg.
func Acquire(cfg Config, logger *zap.Logger) *Gateway {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = New(cfg, logger)
	}
	sharedRefs++
	return shared
}

// Release drops one reference. The gateway is discarded when none remain.
func Release() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedRefs == 0 {
		return
	}
	sharedRefs--
	if sharedRefs == 0 {
		shared = nil
	}
}

// Refs returns the number of outstanding Acquire calls.
func Refs() int {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedRefs
}

// Current returns the shared gateway, or an unbounded one without a
// timeout when nothing holds it.
func Current() *Gateway {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared
	}
	return fallback
}
