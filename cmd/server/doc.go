// Package main is the entry point for the forge server.
//
// The server builds and publishes sandboxed front-end apps and serves the
// runtime perimeter those apps talk to: the egress proxy, namespaced
// storage, PIN sessions and rooms.
//
// Configuration comes from environment variables (see
// internal/infrastructure/config); -port overrides PORT.
//
// Usage:
//
//	DATA_DIR=/var/lib/forge APPS_DIR=/etc/forge/apps ./server
//
//	# Development mode (colored logs, gin debug output)
//	LOG_DEV=true LOG_LEVEL=debug ./server -port 8080
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, bounded by SHUTDOWN_TIMEOUT
package main
