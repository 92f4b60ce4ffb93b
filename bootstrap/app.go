package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// App runs a service built from a typed config C through its lifecycle:
// components start, start hooks run, configure callbacks wire the service,
// late components start, the ready check and ready hooks run, and finally
// stop hooks run before every component is stopped.
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	gracefulTimeout time.Duration
	summaryOut      io.Writer

	onConfigure []func(ctx context.Context, app *App[C]) error
	onStart     []Hook
	onReady     []Hook
	onStop      []Hook
}

// NewApp defaults and validates cfg and builds an App around it.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	svc := cfg.GetServiceConfig()
	s := newSettings(opts)

	log := s.log
	if log == nil {
		logger.Init(svc.Logging)
		log = logger.GetGlobalLogger()
	}

	return &App[C]{
		Name:            svc.Name,
		Version:         svc.Version,
		Cfg:             cfg,
		Components:      component.NewRegistry(component.WithLogger(log)),
		Logger:          log,
		Summary:         NewSummary(svc.Name, svc.Version),
		gracefulTimeout: s.grace,
		summaryOut:      s.summary,
	}, nil
}

// RegisterComponent adds c to the registry. Components start in
// registration order and stop in reverse.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// ReadyCheck fails when any registered component is not healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	if bad := a.Components.Unhealthy(ctx); len(bad) > 0 {
		return fmt.Errorf("unhealthy components: %v", bad)
	}
	return nil
}

// Run starts the app and blocks until a shutdown signal or ctx ends, then
// stops it.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask starts the app, runs task and stops the app when task returns.
// A shutdown signal cancels the task's context. The task's error wins
// over a shutdown error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		return err
	}
	taskCtx, cancel := signal.NotifyContext(ctx, shutdownSignals...)
	defer cancel()

	err := task(taskCtx)
	if stopErr := a.stop(); err == nil {
		err = stopErr
	}
	return err
}

// WaitForSignal blocks until a shutdown signal arrives or ctx ends. It
// returns the signal, or nil when ctx ended first.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// phase is one startup step; failures are reported under label.
type phase struct {
	label string
	run   func(ctx context.Context) error
}

func (a *App[C]) startup(ctx context.Context) error {
	began := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	a.Logger.Info("All components started", logger.Fields("count", len(a.Components.All())))

	phases := []phase{
		{"onStart hook failed", func(ctx context.Context) error { return runHooks(ctx, a.onStart) }},
		{"configuration failed", a.configure},
		{"configuration failed: late components", a.Components.StartAll},
		{"ready check", a.warnUnready},
		{"onReady hook failed", func(ctx context.Context) error { return runHooks(ctx, a.onReady) }},
	}
	for _, p := range phases {
		if err := p.run(ctx); err != nil {
			a.abort()
			return fmt.Errorf("%s: %w", p.label, err)
		}
	}

	a.Summary.SetStartupDuration(time.Since(began))
	a.Summary.Render(a.summaryOut, a.Components)
	return nil
}

func (a *App[C]) configure(ctx context.Context) error {
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	if n := len(a.onConfigure); n > 0 {
		a.Logger.Info("Configuration complete", logger.Fields("callbacks", n))
	}
	return nil
}

// warnUnready logs unhealthy components without failing startup; a
// degraded broker should not keep queries from being answered.
func (a *App[C]) warnUnready(ctx context.Context) error {
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}
	return nil
}

// abort stops whatever started before a startup phase failed.
func (a *App[C]) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Stopping components after failed startup", logger.Fields(logger.FieldError, err.Error()))
	}
}

func (a *App[C]) stop() error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var failed error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		failed = err
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		failed = err
	}
	a.Logger.Info("Application shutdown complete")
	return failed
}
