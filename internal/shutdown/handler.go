package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler manages graceful shutdown in two steps. The first signal cancels
// Context, which stops new work from being dispatched. The second cancels
// WorkContext, which aborts in-flight work.
type Handler struct {
	ctx        context.Context
	cancel     context.CancelFunc
	workCtx    context.Context
	workCancel context.CancelFunc
	cleanupFns []func()
	cleanOnce  sync.Once
	mu         sync.Mutex
	signals    int
	stop       chan struct{}
}

// New creates a new shutdown handler
func New() *Handler {
	return NewWithParent(context.Background())
}

// NewWithParent creates a handler whose contexts derive from parent.
func NewWithParent(parent context.Context) *Handler {
	workCtx, workCancel := context.WithCancel(parent)
	ctx, cancel := context.WithCancel(workCtx)
	return &Handler{
		ctx:        ctx,
		cancel:     cancel,
		workCtx:    workCtx,
		workCancel: workCancel,
		stop:       make(chan struct{}),
	}
}

// Context is cancelled on the first shutdown request
func (h *Handler) Context() context.Context {
	return h.ctx
}

// WorkContext is cancelled only on a hard shutdown
func (h *Handler) WorkContext() context.Context {
	return h.workCtx
}

// AddCleanup registers a cleanup function to be called on shutdown
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFns = append(h.cleanupFns, fn)
}

// Listen starts listening for shutdown signals
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				h.mu.Lock()
				h.signals++
				n := h.signals
				h.mu.Unlock()
				if n == 1 {
					h.Shutdown()
				} else {
					h.Abort()
					return
				}
			case <-h.stop:
				return
			}
		}
	}()
}

// Shutdown stops dispatch; in-flight work continues
func (h *Handler) Shutdown() {
	h.cancel()
}

// Abort cancels in-flight work
func (h *Handler) Abort() {
	h.cancel()
	h.workCancel()
}

// Close stops listening, releases the contexts and runs cleanup functions once.
func (h *Handler) Close() {
	h.cleanOnce.Do(func() {
		close(h.stop)
		h.Abort()

		h.mu.Lock()
		fns := h.cleanupFns
		h.mu.Unlock()

		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	})
}
