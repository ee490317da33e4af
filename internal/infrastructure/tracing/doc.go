/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a span carrying a trace id, taken from the inbound
X-Trace-ID header or the request id, and its own span id. Both are echoed in
the response. Finished spans go through a buffered channel to a collector
that writes them to the structured log; when the buffer is full spans are
dropped rather than blocking the request.

# Usage

	tracer := tracing.New("forge", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
