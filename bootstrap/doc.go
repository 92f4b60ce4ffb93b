// Package bootstrap runs the observer's lifecycle: it starts registered
// components, runs configure callbacks and hooks, prints a startup
// summary, blocks until a signal and shuts down within a grace period.
//
//	cfg, err := config.Load("observer")
//	app, err := bootstrap.NewApp(cfg)
//	app.RegisterComponent(hub)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*config.AppConfig]) error {
//	    // wire consumers against started infrastructure
//	    return nil
//	})
//	err = app.Run(ctx)
package bootstrap
