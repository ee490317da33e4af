// Package http provides the HTTP handlers and routes of the forge API.
//
// Endpoints:
//   - Builds: /builds, /builds/:id, /builds/:id/index, /builds/:id/bundle/*file
//   - Proxy: /api/proxy
//   - Storage: /storage
//   - PIN sessions: /apps/:id/pin/...
//   - Rooms: /rooms/create, /rooms/join, /rooms/demo
//   - Versions: /apps/:id/versions, /apps/:id/approve
//   - Admin: /admin/apps/:id, /admin/maintenance/...
//   - Health: / and /health
//
// Every failure is answered with {"error": kind, "message": text} where kind
// is one of the apperr kinds.
//
// Example Usage:
//
//	handlers := http.NewHandlers(http.Deps{Builds: builds, Apps: apps, ...})
//	handlers.Register(router)
package http
