// Package bootstrap runs a portforge command with a uniform lifecycle:
// defaults and validation, logger initialisation, start hooks, the task
// itself under a signal-cancelled context, then stop hooks within a
// graceful timeout.
//
//	app, err := bootstrap.NewApp(cfg)
//	app.OnStart(setupTelemetry)
//	app.OnStop(flushTelemetry)
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    return buildPort(ctx, "www/nginx")
//	})
package bootstrap
