/*
Package monitoring provides Prometheus metrics for the HTTP surface, the
build pipeline and the runtime perimeter.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "resolver", "fetch")
	// ... perform operation ...
	timer.Stop("success")

All recording methods are safe on a nil *Metrics so components can run
without a collector in tests.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
