// Package runtime ties process signals to run cancellation and cleanup.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joss/obsreport/internal/logging"
)

// ShutdownFunc is a cleanup function called during shutdown.
type ShutdownFunc func(ctx context.Context) error

// DefaultShutdownTimeout bounds all cleanup handlers together.
const DefaultShutdownTimeout = 10 * time.Second

var log = logging.New("runtime")

// ShutdownManager cancels the work context on the first signal (or
// Shutdown call) and then runs cleanup handlers, last registered first.
type ShutdownManager struct {
	mu       sync.Mutex
	handlers []namedHandler
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

type namedHandler struct {
	name string
	fn   ShutdownFunc
}

// ErrShutdown is the cancellation cause set on the work context.
var ErrShutdown = errors.New("shutdown requested")

// NewShutdownManager creates a manager whose Context derives from parent.
func NewShutdownManager(parent context.Context, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &ShutdownManager{
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *ShutdownManager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, namedHandler{name: name, fn: fn})
}

// RegisterSimple adds a cleanup function with no error.
func (m *ShutdownManager) RegisterSimple(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled, with cause ErrShutdown or the signal, when shutdown begins.
func (m *ShutdownManager) Context() context.Context {
	return m.ctx
}

// Done is closed once every handler has returned or the timeout passed.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// ListenForSignals shuts down on SIGINT or SIGTERM. The returned function
// stops listening.
func (m *ShutdownManager) ListenForSignals() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			log.Warn("signal_received", map[string]interface{}{"signal": sig.String()}, nil)
			m.shutdown(fmt.Errorf("%w: %s", ErrShutdown, sig))
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(quit)
		})
	}
}

// Shutdown cancels the context and runs the handlers. Safe to call more
// than once; later calls return the first result.
func (m *ShutdownManager) Shutdown() error {
	m.shutdown(ErrShutdown)
	<-m.done
	return m.err
}

func (m *ShutdownManager) shutdown(cause error) {
	m.once.Do(func() {
		defer close(m.done)
		m.cancel(cause)
		m.err = m.runHandlers()
	})
}

func (m *ShutdownManager) runHandlers() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	handlers := append([]namedHandler(nil), m.handlers...)
	m.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped after timeout", h.name))
			continue
		}
		hStart := time.Now()
		if err := h.fn(ctx); err != nil {
			log.Error("shutdown_handler_failed", map[string]interface{}{"handler": h.name}, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		log.TimedEvent("shutdown_handler", hStart, map[string]interface{}{"handler": h.name})
	}
	log.TimedEvent("shutdown_complete", start, map[string]interface{}{
		"handlers": len(handlers),
		"errors":   len(errs),
	})
	return errors.Join(errs...)
}
