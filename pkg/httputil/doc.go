// Package httputil holds the response helpers and middleware of the status
// server.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, report)
//	httputil.WriteNotFoundError(w, "plugin not found: cpu")
//
// Every error body is an ErrorResponse carrying the request id, when the
// RequestID middleware ran first.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestID,
//		httputil.Recovery(log),
//		httputil.Logging(log),
//	)(router)
//
// # Related Packages
//
//   - pkg/observability: Status routes built on these helpers
package httputil
