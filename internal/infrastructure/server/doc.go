/*
Package server wires the forge services into an HTTP server.

Open builds the shared Components (database, app registry, build pipeline,
proxy gateway, storage, sessions and the orphan sweeper). The server adds
the gin router with its middleware chain:

	gin.Recovery -> RequestID -> tracing -> metrics -> CORS -> rate limit -> identity

and mounts the API, the build events websocket and /metrics. Shutdown
drains HTTP requests first, then running builds, then closes the database.
*/
package server
