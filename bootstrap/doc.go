// Package bootstrap provides application initialization and lifecycle management.
// It wires configuration, storage, the log pipeline and the API server.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for shutdown signal
//	app.WaitForShutdown()
package bootstrap
