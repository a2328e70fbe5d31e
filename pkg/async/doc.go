// Package async runs the background tasks of the agent (status server, config
// watcher, restart schedule) with panic recovery, optional timeouts and error
// logging.
//
// # Usage Example
//
//	task := async.SafeGo(ctx, log, 0, "status server", func(ctx context.Context) error {
//		return serve(ctx)
//	})
//	...
//	if err := task.Wait(shutdownCtx); err != nil {
//		log.WithError(err).Warn("Status server did not stop cleanly")
//	}
//
// # Related Packages
//
//   - cmd/probekit: Starts the agent's background tasks
package async
