package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Hook is a function that performs cleanup during shutdown.
type Hook func(ctx context.Context) error

// Coordinator manages graceful shutdown. Hooks run in priority order
// (lower first) under a shared timeout; a hook that fails does not stop
// the ones after it.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	hooks []namedHook

	shutdownOnce sync.Once
	triggerOnce  sync.Once
	shutdownCh   chan struct{}
}

type namedHook struct {
	name     string
	hook     Hook
	priority int
}

// Priorities for voterd's components. The HTTP server goes first so no
// new imports start; workers drain before the ledger and voter tables
// close underneath them.
const (
	PriorityHTTPServer = 10 // Stop accepting new uploads first
	PriorityScheduler  = 20 // Stop the snapshot auditor
	PriorityWorkers    = 30 // Drain import workers
	PriorityDatabase   = 90 // Database connection last
)

// New creates a new shutdown coordinator.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// RegisterHook registers a shutdown hook. Priority determines order
// (lower = run first).
func (c *Coordinator) RegisterHook(name string, hook Hook, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hooks = append(c.hooks, namedHook{
		name:     name,
		hook:     hook,
		priority: priority,
	})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown hook")
}

// WaitForSignal blocks until a shutdown signal is received or shutdown
// is triggered programmatically.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		c.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return sig
	case <-c.shutdownCh:
		return syscall.SIGTERM
	}
}

// Shutdown runs all registered hooks in priority order.
func (c *Coordinator) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		c.triggerOnce.Do(func() {
			close(c.shutdownCh)
		})

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("hooks", len(c.hooks)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()

		c.mu.Lock()
		hooks := make([]namedHook, len(c.hooks))
		copy(hooks, c.hooks)
		c.mu.Unlock()

		sortHooksByPriority(hooks)

		for _, h := range hooks {
			select {
			case <-ctx.Done():
				c.logger.Warn().
					Str("hook", h.name).
					Msg("Shutdown timeout reached, skipping remaining hooks")
				shutdownErr = ctx.Err()
				return
			default:
			}

			c.logger.Debug().
				Str("hook", h.name).
				Int("priority", h.priority).
				Msg("Executing shutdown hook")

			if err := h.hook(ctx); err != nil {
				c.logger.Error().
					Err(err).
					Str("hook", h.name).
					Msg("Shutdown hook failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		c.logger.Info().
			Dur("duration", time.Since(start)).
			Msg("Graceful shutdown complete")
	})

	return shutdownErr
}

// TriggerShutdown triggers a shutdown programmatically. Safe to call
// from multiple goroutines.
func (c *Coordinator) TriggerShutdown() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.shutdownCh)
	})
}

// Simple insertion-style sort; the hook list is tiny.
func sortHooksByPriority(hooks []namedHook) {
	for i := 0; i < len(hooks); i++ {
		for j := i + 1; j < len(hooks); j++ {
			if hooks[j].priority < hooks[i].priority {
				hooks[i], hooks[j] = hooks[j], hooks[i]
			}
		}
	}
}
