package http

import (
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// track returns a func that records the call with the outcome of *err.
func (hm *HandlerMetrics) track(service, operation string, err *error) func() {
	timer := monitoring.NewTimer(hm.metrics, service, operation)
	return func() {
		status := "success"
		if err != nil && *err != nil {
			status = string(apperr.KindOf(*err))
		}
		timer.Stop(status)
	}
}

// TrackBuildOperation tracks build pipeline operations
func (hm *HandlerMetrics) TrackBuildOperation(operation string, err *error) func() {
	return hm.track("build_manager", operation, err)
}

// TrackRegistryOperation tracks app registry and version operations
func (hm *HandlerMetrics) TrackRegistryOperation(operation string, err *error) func() {
	return hm.track("app_registry", operation, err)
}

// TrackSessionOperation tracks PIN session and room operations
func (hm *HandlerMetrics) TrackSessionOperation(operation string, err *error) func() {
	return hm.track("session_manager", operation, err)
}

// TrackMaintenanceOperation tracks build directory maintenance
func (hm *HandlerMetrics) TrackMaintenanceOperation(operation string, err *error) func() {
	return hm.track("maintenance", operation, err)
}
