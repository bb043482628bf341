// Package shutdown turns interrupt signals into context cancellation and
// runs cleanup callbacks when a command finishes.
package shutdown

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/docs-hound/docshound/internal/logger"
)

// Handler manages graceful shutdown. The first signal cancels Context so
// running crawls wind down and return partial results; a second signal
// calls OnForce.
type Handler struct {
	mu        sync.Mutex
	callbacks []namedCallback

	interrupted atomic.Bool
	closed      atomic.Bool
	timeout     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	stop    chan struct{}
	done    chan struct{}

	logger  *logger.Logger
	onForce func()
}

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

type namedCallback struct {
	name string
	fn   Callback
}

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds the total time spent in callbacks.
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
	// OnForce runs on the second signal. Defaults to exiting with status 130.
	OnForce func()
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a handler whose Context derives from parent and starts
// listening for signals.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.OnForce == nil {
		cfg.OnForce = func() { os.Exit(130) }
	}

	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.OrNop(cfg.Logger).WithComponent("shutdown"),
		onForce: cfg.OnForce,
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	defer close(h.done)
	for {
		select {
		case sig := <-h.sigChan:
			if h.interrupted.CompareAndSwap(false, true) {
				h.logger.Warnf("Received %s, finishing in-flight requests (repeat to force exit)", sig)
				h.cancel()
				continue
			}
			h.logger.Warnf("Received %s again, exiting", sig)
			h.onForce()
		case <-h.stop:
			return
		}
	}
}

// Register registers a shutdown callback with a name. Callbacks run in
// reverse registration order.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: callback})
}

// RegisterCloser registers c.Close as a callback.
func (h *Handler) RegisterCloser(name string, c io.Closer) {
	h.Register(name, func(context.Context) error {
		return c.Close()
	})
}

// GracefulServer is a component stopped by a Shutdown call, such as
// *http.Server.
type GracefulServer interface {
	Shutdown(ctx context.Context) error
}

// RegisterServer registers server.Shutdown as a callback.
func (h *Handler) RegisterServer(name string, server GracefulServer) {
	h.Register(name, server.Shutdown)
}

// Context returns the command context. It is cancelled on the first
// signal or when Close runs.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether a signal has been received.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Trigger delivers an interrupt as if a signal had arrived.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGINT:
	default:
	}
}

// Close stops listening for signals, cancels Context and runs the
// callbacks. Errors from all callbacks are joined. Only the first call
// does any work.
func (h *Handler) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	signal.Stop(h.sigChan)
	close(h.stop)
	<-h.done
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := make([]namedCallback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.Unlock()

	start := time.Now()
	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.executeCallback(ctx, callbacks[i]); err != nil {
			h.logger.WithError(err).Warnf("Cleanup %q failed", callbacks[i].name)
			errs = append(errs, err)
		}
	}
	h.logger.Debugf("Shutdown completed in %s", time.Since(start))

	return errors.Join(errs...)
}

// executeCallback runs a callback, giving up when ctx expires.
func (h *Handler) executeCallback(ctx context.Context, cb namedCallback) error {
	done := make(chan error, 1)

	go func() {
		done <- cb.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: cb.name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
