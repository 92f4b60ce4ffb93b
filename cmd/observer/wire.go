package main

import (
	"fmt"
	"os"

	"github.com/ETS-Next-Gen/writing-observer-sub002/bootstrap"
	"github.com/ETS-Next-Gen/writing-observer-sub002/config"
	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/guard"
	"github.com/ETS-Next-Gen/writing-observer-sub002/kafka"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/query"
	"github.com/ETS-Next-Gen/writing-observer-sub002/reducer"
	"github.com/ETS-Next-Gen/writing-observer-sub002/roster"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
)

// forwarderID is the hub subscriber publishing updates to Kafka.
const forwarderID = "kafka-forwarder"

// services is the query and event side of the observer, built once the
// state store is available.
type services struct {
	reducers   *reducer.Registry
	functions  *dag.FunctionRegistry
	library    *query.Library
	dispatcher *reducer.Dispatcher
	engine     *dag.Engine
}

func buildServices(cfg *config.AppConfig, store statestore.Store, hub *reducer.Hub, metrics *observability.Metrics, log *logger.Logger) (*services, error) {
	reducers, err := buildReducers(cfg)
	if err != nil {
		return nil, err
	}
	functions, err := buildFunctions(cfg, store, metrics, log)
	if err != nil {
		return nil, err
	}
	library, err := loadQueries(cfg.Queries.Dirs, log)
	if err != nil {
		return nil, err
	}

	executor := dag.NewExecutor(functions,
		dag.WithStore(store),
		dag.WithReducers(reducers),
		dag.WithConfig(cfg.Executor),
		dag.WithLogger(log.WithComponent("dag")),
		dag.WithMetrics(metrics),
	)
	dispatcher := reducer.NewDispatcher(reducers, store,
		reducer.WithHub(hub),
		reducer.WithLogger(log.WithComponent("reducer")),
		reducer.WithMetrics(metrics),
	)

	return &services{
		reducers:   reducers,
		functions:  functions,
		library:    library,
		dispatcher: dispatcher,
		engine:     dag.NewEngine(executor, library, cfg.Name, metrics),
	}, nil
}

func buildReducers(cfg *config.AppConfig) (*reducer.Registry, error) {
	reg := reducer.NewRegistry()
	if err := reg.Register(reducer.EventCounter(cfg.Reducers.EventCountContext)); err != nil {
		return nil, fmt.Errorf("register reducers: %w", err)
	}
	reg.Freeze()
	return reg, nil
}

func buildFunctions(cfg *config.AppConfig, store statestore.Store, metrics *observability.Metrics, log *logger.Logger) (*dag.FunctionRegistry, error) {
	mw := []dag.Middleware{dag.WithCallLogging(log.WithComponent("dag.call"))}
	if metrics != nil {
		mw = append(mw, dag.WithTracing(), dag.WithCallMetrics(metrics))
	}
	reg := dag.NewFunctionRegistry(mw...)

	src, err := roster.NewSource(cfg.Roster)
	if err != nil {
		return nil, err
	}
	fn, err := guard.Wrap(roster.FunctionName, roster.Function(src), cfg.Guards, store)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(roster.FunctionName, fn); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// loadQueries registers the documents of every existing directory. A
// missing directory is skipped with a warning.
func loadQueries(dirs []string, log *logger.Logger) (*query.Library, error) {
	lib := query.NewLibrary()
	var present []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			log.Warn("Query directory not found", logger.Fields("dir", dir))
			continue
		}
		present = append(present, dir)
	}
	n, err := query.NewFileLoader(present...).LoadAll(lib)
	if err != nil {
		return nil, fmt.Errorf("load queries: %w", err)
	}
	lib.Freeze()
	log.Info("Query documents loaded", logger.Fields("count", n))
	return lib, nil
}

// buildKafka adds an event consumer per configured topic and, when an
// updates topic is set, a forwarder publishing hub updates.
func buildKafka(cfg *config.AppConfig, d kafka.Dispatcher, hub *reducer.Hub, summary *bootstrap.Summary, log *logger.Logger) (*kafka.Component, error) {
	comp := kafka.NewComponent(cfg.Kafka, log)
	handler := kafka.EventHandler(d, cfg.Guards.Retry.RetryConfig(), log)

	for _, topic := range cfg.Kafka.Topics {
		c, err := kafka.NewConsumer(cfg.Kafka, topic, handler, log)
		if err != nil {
			return nil, err
		}
		comp.Add(c)
		summary.TrackConsumer("events", cfg.Kafka.GroupID, topic)
	}

	if cfg.Kafka.UpdatesTopic != "" {
		p, err := kafka.NewProducer(cfg.Kafka, cfg.Kafka.UpdatesTopic, log)
		if err != nil {
			return nil, err
		}
		sub, err := hub.Subscribe(forwarderID, "*", reducer.DefaultSubscriberBuffer)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		comp.Add(kafka.NewForwarder(p, sub, log))
		summary.TrackConsumer("updates", "", cfg.Kafka.UpdatesTopic)
	}
	return comp, nil
}
