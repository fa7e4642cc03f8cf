package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown runs a server until its context ends, then drains
// in-flight requests and runs cleanup hooks
type GracefulShutdown struct {
	server        *Server
	hooks         []namedHook
	timeout       time.Duration
	logger        *zap.Logger
	mu            sync.Mutex
	shutdownOnce  sync.Once
	shutdownChan  chan struct{}
	shutdownError error
}

// ShutdownHook is a function called during graceful shutdown
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// NewGracefulShutdown creates a new graceful shutdown handler. A zero
// timeout means 30 seconds.
func NewGracefulShutdown(server *Server, timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GracefulShutdown{
		server:       server,
		timeout:      timeout,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
}

// RegisterHook registers a hook run after the server stops accepting
// requests. Hooks run in registration order.
func (gs *GracefulShutdown) RegisterHook(name string, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, namedHook{name: name, fn: hook})
}

// Run serves until ctx is cancelled or the server fails
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("server listening", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
		return gs.Shutdown()
	case err := <-errChan:
		// still release what the hooks hold
		_ = gs.Shutdown()
		return err
	}
}

// Shutdown drains the server and runs the hooks once. Concurrent callers
// wait for the first to finish and share its result.
func (gs *GracefulShutdown) Shutdown() error {
	gs.shutdownOnce.Do(func() {
		gs.logger.Info("initiating graceful shutdown", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs []error
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("server shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}

		gs.mu.Lock()
		hooks := make([]namedHook, len(gs.hooks))
		copy(hooks, gs.hooks)
		gs.mu.Unlock()

		for _, hook := range hooks {
			if err := hook.fn(ctx); err != nil {
				gs.logger.Error("shutdown hook failed", zap.String("hook", hook.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
				continue
			}
			gs.logger.Debug("shutdown hook completed", zap.String("hook", hook.name))
		}

		gs.shutdownError = errors.Join(errs...)
		if gs.shutdownError == nil {
			gs.logger.Info("shutdown completed")
		}
		close(gs.shutdownChan)
	})

	<-gs.shutdownChan
	return gs.shutdownError
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.shutdownChan
	return gs.shutdownError
}
