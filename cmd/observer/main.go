// Command observer ingests activity events into reducer state and answers
// DAG queries over it.
//
//	observer                          run until SIGINT/SIGTERM
//	observer --query request.json     answer one request and exit
//
// Settings come from config.yml, .env and OBSERVER_* variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/ETS-Next-Gen/writing-observer-sub002/bootstrap"
	"github.com/ETS-Next-Gen/writing-observer-sub002/config"
	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	apperrors "github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/redis"
	"github.com/ETS-Next-Gen/writing-observer-sub002/reducer"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/version"
)

type observerApp = bootstrap.App[*config.AppConfig]

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "observer:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("observer", pflag.ContinueOnError)
	configFile := flags.StringP("config", "c", "", "config file (default: first of ./cmd/observer/config.yml, ./config.yml, ...)")
	envFile := flags.String("env", "", "env file loaded before OBSERVER_* overrides")
	queryFile := flags.StringP("query", "q", "", "answer the JSON request in this file (- for stdin) and exit")
	showVersion := flags.BoolP("version", "v", false, "print the build version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("observer", version.Get())
		return nil
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	cfg, err := config.Load("observer", opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if *queryFile != "" {
		// stdout carries the response only
		app, err := bootstrap.NewApp(cfg, bootstrap.WithSummaryOutput(os.Stderr))
		if err != nil {
			return err
		}
		svc, err := setup(app, false)
		if err != nil {
			return err
		}
		return app.RunTask(ctx, func(ctx context.Context) error {
			return answer(ctx, svc.engine, *queryFile, os.Stdin, os.Stdout)
		})
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	if _, err := setup(app, cfg.Kafka.Enabled); err != nil {
		return err
	}
	return app.Run(ctx)
}

// setup registers the infrastructure components and the configure step
// building the services. The returned value is filled in during
// configure.
func setup(app *observerApp, withKafka bool) (*services, error) {
	cfg := app.Cfg
	svc := &services{}

	hub := reducer.NewHub()
	if err := app.RegisterComponent(hub); err != nil {
		return nil, err
	}

	var redisComp *redis.Component
	if cfg.StateStore.Backend == config.BackendRedis {
		redisComp = redis.NewComponent(cfg.Redis, app.Logger)
		if err := app.RegisterComponent(redisComp); err != nil {
			return nil, err
		}
	}

	var metrics *observability.Metrics
	if cfg.Observability.Enabled {
		app.OnStart(func(ctx context.Context) error {
			m, err := initTelemetry(ctx, app)
			metrics = m
			return err
		})
	}

	app.OnConfigure(func(ctx context.Context, a *observerApp) error {
		var store statestore.Store = statestore.NewMemoryStore()
		if redisComp != nil {
			store = redisComp.Store()
		}

		built, err := buildServices(cfg, store, hub, metrics, a.Logger)
		if err != nil {
			return err
		}
		*svc = *built
		a.Summary.TrackCatalog("queries", svc.library.Names())
		a.Summary.TrackCatalog("reducers", svc.reducers.IDs())
		a.Summary.TrackCatalog("functions", svc.functions.List())

		if !withKafka {
			return nil
		}
		comp, err := buildKafka(cfg, svc.dispatcher, hub, a.Summary, a.Logger)
		if err != nil {
			return err
		}
		return a.RegisterComponent(comp)
	})
	return svc, nil
}

// initTelemetry installs the OTLP tracer and meter providers and flushes
// them on shutdown.
func initTelemetry(ctx context.Context, app *observerApp) (*observability.Metrics, error) {
	tc := app.Cfg.TracerConfig()
	tp, err := observability.InitTracer(ctx, &tc)
	if err != nil {
		return nil, err
	}
	mc := app.Cfg.MeterConfig()
	mp, err := observability.InitMeter(ctx, &mc)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	app.OnStop(func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	})
	return observability.NewMetrics(observability.Meter(app.Cfg.Name))
}

// answer decodes one request from path (or stdin for "-"), runs it and
// writes the exports as JSON.
func answer(ctx context.Context, engine *dag.Engine, path string, stdin io.Reader, out io.Writer) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var req dag.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	exports, err := engine.Handle(ctx, req)
	if err != nil {
		// Rejected requests still produce a document for the caller.
		if encErr := enc.Encode(apperrors.Wrap(err).Envelope()); encErr != nil {
			return errors.Join(err, encErr)
		}
		return err
	}
	return enc.Encode(exports)
}
