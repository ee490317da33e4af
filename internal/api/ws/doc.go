// Package ws streams build lifecycle events over WebSocket.
//
// A client connects to /builds/:id/events and first receives a snapshot of
// the build record. Lifecycle events follow until the build is terminal,
// after which the server closes the connection normally. Events are best
// effort: when one is dropped the stream ends with a fresh snapshot.
//
// Message Types (Server → Client):
//   - snapshot: the current build record
//   - event: a lifecycle transition
//   - error: the stream failed
//
// Example Usage:
//
//	handler := ws.NewHandler(buildManager, origins, logger).WithMetrics(metrics)
//	router.GET("/builds/:id/events", handler.HandleBuildEvents)
package ws
