// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"go.uber.org/zap"

	"github.com/JakeFAU/restock-watch/internal/api"
	"github.com/JakeFAU/restock-watch/internal/config"
	"github.com/JakeFAU/restock-watch/internal/dispatcher"
	"github.com/JakeFAU/restock-watch/internal/headless/pool"
	"github.com/JakeFAU/restock-watch/internal/seed"
	"github.com/JakeFAU/restock-watch/internal/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	service   *service.Service
	pool      *pool.Pool
	closers   []closer
}

// Service exposes the control surface, e.g. for one-shot CLI commands.
func (a *App) Service() *service.Service {
	return a.service
}

// Handler returns the HTTP handler of the control surface.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and runs the dispatcher until ctx is cancelled, a signal
// arrives or one of them fails. It does not release resources; call Close.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	g.Add(func() error {
		a.applySeed(dispatchCtx)
		return a.dispatch.Run(dispatchCtx)
	}, func(error) {
		cancelDispatch()
	})

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	g.Add(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		return srv.Serve(ln)
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	})

	err := g.Run()
	var sigErr run.SignalError
	switch {
	case errors.As(err, &sigErr):
		a.logger.Info("shutdown initiated", zap.String("signal", sigErr.Signal.String()))
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, http.ErrServerClosed):
		a.logger.Info("shutdown initiated")
		return nil
	default:
		return err
	}
}

func (a *App) applySeed(ctx context.Context) {
	if a.cfg.Seed.File == "" {
		return
	}
	f, err := seed.Load(a.cfg.Seed.File)
	if err != nil {
		a.logger.Warn("seed file ignored", zap.String("file", a.cfg.Seed.File), zap.Error(err))
		return
	}
	seed.Apply(ctx, a.service, f, a.logger.Named("seed"))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// ready reports whether the target store answers.
func ready(pinger func(context.Context) error) api.ReadyFunc {
	return func(ctx context.Context) error {
		if pinger == nil {
			return nil
		}
		return pinger(ctx)
	}
}
