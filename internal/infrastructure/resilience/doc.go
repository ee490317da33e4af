/*
Package resilience provides a circuit breaker for outbound dependencies.

The dependency resolver wraps every CDN fetch in a breaker so that a dead
or throttling CDN fails builds fast instead of tying up build workers until
their timeouts expire.

# Usage

	breakers := resilience.NewGroup(resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	err := breakers.Get("esm.sh").Do(func() error {
		return fetch(ctx, url)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// fail fast
	}
*/
package resilience
