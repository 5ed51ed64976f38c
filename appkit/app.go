// Package appkit provides the small generic application lifecycle used
// by the demo binary: an Assemble/Register composition root wired to an
// errgroup-managed set of background tasks, shut down together on
// SIGINT/SIGTERM.
package appkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mlindqvist/zkdistributed/logger"
	"github.com/mlindqvist/zkdistributed/tracing"
)

// Context carries the dependencies available during assembly.
type Context struct {
	TracerProvider *sdktrace.TracerProvider
}

// Info describes how to build and run a service. T is the service's own
// dependency bundle, assembled once and handed to Register.
type Info[T any] struct {
	ServiceName string
	// Assemble builds the service's dependencies — the composition root.
	Assemble func(ctx Context) (T, error)
	// Register starts whatever background tasks the service needs,
	// using AddTask.
	Register func(app *Application, deps T) error
}

// Application manages the lifecycle of a set of background tasks
// started during Register, shutting all of them down together on a
// termination signal or a task's own failure.
type Application struct {
	serviceName string
	tracer      *sdktrace.TracerProvider

	g              *errgroup.Group
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New initializes logging and tracing, assembles T, registers its
// background tasks, and returns a ready-to-Run Application.
func New[T any](info Info[T], jaegerEndpoint string) (*Application, error) {
	logger.Init(info.ServiceName)

	tp, err := tracing.InitTracerProvider(info.ServiceName, jaegerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	app := &Application{serviceName: info.ServiceName, tracer: tp}
	app.shutdownCtx, app.shutdownCancel = context.WithCancel(context.Background())
	app.g, _ = errgroup.WithContext(app.shutdownCtx)

	deps, err := info.Assemble(Context{TracerProvider: tp})
	if err != nil {
		return nil, fmt.Errorf("assemble dependencies: %w", err)
	}

	if err := info.Register(app, deps); err != nil {
		return nil, fmt.Errorf("register services: %w", err)
	}

	app.addCoreShutdownTasks()
	return app, nil
}

// AddTask registers a background task and, optionally, a stop function
// run (with a bounded timeout) once shutdown begins.
func (app *Application) AddTask(start func(ctx context.Context) error, stop func(ctx context.Context) error) {
	if start != nil {
		app.g.Go(func() error {
			err := start(app.shutdownCtx)
			if err != nil {
				app.shutdownCancel()
			}
			return err
		})
	}
	if stop != nil {
		app.g.Go(func() error {
			<-app.shutdownCtx.Done()
			timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return stop(timeoutCtx)
		})
	}
}

func (app *Application) addCoreShutdownTasks() {
	app.AddTask(nil, func(ctx context.Context) error {
		logger.Logger.Info().Msg("shutting down tracer provider")
		return app.tracer.Shutdown(ctx)
	})
}

// Run blocks until a task fails, or SIGINT/SIGTERM is received, then
// waits for every registered task to finish shutting down.
func (app *Application) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	app.g.Go(func() error {
		select {
		case <-app.shutdownCtx.Done():
			return nil
		case sig := <-quit:
			logger.Logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
			app.shutdownCancel()
		}
		return nil
	})

	logger.Logger.Info().Str("service", app.serviceName).Msg("application started")

	if err := app.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Logger.Error().Err(err).Msg("application run failed")
		return err
	}

	logger.Logger.Info().Str("service", app.serviceName).Msg("application gracefully shut down")
	return nil
}
