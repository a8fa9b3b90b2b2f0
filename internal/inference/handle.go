// Package inference talks to the external model server: the face-mesh
// landmark model, the general object detector and the face embedding model.
// Each model sits behind a lazily initialised Handle shared by all requests.
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harhit22/new-auto-attendace/internal/face"
)

// InitError is returned by Handle.Get while a model cannot be initialised.
type InitError struct {
	Model string
	Err   error
	At    time.Time
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s model: %v", e.Model, e.Err)
}

// Unwrap lets callers test for face.ErrModelUnavailable and the cause.
func (e *InitError) Unwrap() []error {
	return []error{face.ErrModelUnavailable, e.Err}
}

// defaultInitTimeout bounds one model initialisation.
const defaultInitTimeout = 30 * time.Second

// Handle lazily initialises a shared, read-only model value. The first Get
// runs init; success is cached for the process lifetime. A failure is cached
// for retryAfter so a dead model server is not hammered, then retried.
//
// init runs detached from the caller's cancellation under its own timeout,
// since its result is shared by every later request.
type Handle[T any] struct {
	name        string
	init        func(ctx context.Context) (T, error)
	retryAfter  time.Duration
	initTimeout time.Duration
	now         func() time.Time

	mu    sync.Mutex
	ready bool
	value T
	err   *InitError
}

// NewHandle creates a handle; init is not called until the first Get.
func NewHandle[T any](name string, retryAfter time.Duration, init func(ctx context.Context) (T, error)) *Handle[T] {
	return &Handle[T]{name: name, init: init, retryAfter: retryAfter, initTimeout: defaultInitTimeout, now: time.Now}
}

// Get returns the initialised value or an *InitError. A caller whose context
// is already done gets its context error and does not start init.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if h.ready {
		return h.value, nil
	}
	if h.err != nil && h.now().Sub(h.err.At) < h.retryAfter {
		return zero, h.err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.initTimeout)
	defer cancel()

	v, err := h.init(initCtx)
	if err != nil {
		initErr := &InitError{Model: h.name, Err: err, At: h.now()}
		// A cancellation says nothing about the model server.
		if !errors.Is(err, context.Canceled) {
			h.err = initErr
		}
		return zero, initErr
	}
	h.value = v
	h.ready = true
	h.err = nil
	return v, nil
}

// Ready reports whether the model has been initialised.
func (h *Handle[T]) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}
