/*
Package resilience provides a context-aware circuit breaker.

The DevTools connection runs every protocol call through a Breaker so that
a crashed or closed browser turns into fast ErrCircuitOpen failures, which
the dispatcher reports per panel, instead of a stall on every target.

	breaker := resilience.New("devtools", resilience.Settings{
		Cooldown: 5 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	res, err := resilience.Call(ctx, breaker, func(ctx context.Context) (Result, error) {
		return conn.roundTrip(ctx, msg)
	})

States move as follows:

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probes ok]-> Closed
	                   ^                      |
	                   +------[failure]-------+

Context cancellation by the caller is not counted as a failure.
*/
package resilience
