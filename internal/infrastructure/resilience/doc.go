/*
Package resilience provides the circuit breaker used by the remote terminal
client.

Every unary request to a remote host (open, input, close) passes through one
Breaker per connection. Once the host is unreachable the breaker opens and
further requests fail immediately with ErrCircuitOpen; for input forwarding
that failure stops the forwarding loop, which marks the terminal closed.

# Usage

	breaker := resilience.New("remote", resilience.Settings{
		MaxRequests: 3,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	ack, err := resilience.Call(breaker, func() (*protocol.Ack, error) {
		return client.input(ctx, req)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Caller cancellation (context.Canceled) is not counted as a failure.
*/
package resilience
