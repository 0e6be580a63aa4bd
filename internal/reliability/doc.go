// Package reliability holds the circuit breaker the service clients use to
// stop calling a service that keeps timing out or is not bound at all.
//
//	cb := reliability.NewCircuitBreaker(
//	    reliability.WithName("registry"),
//	    reliability.WithFailureThreshold(5),
//	    reliability.WithTimeout(30*time.Second),
//	    reliability.WithFailureClassifier(func(err error) bool {
//	        return errors.Is(err, clients.ErrTimeout)
//	    }),
//	)
//
//	err := cb.Execute(ctx, func() error {
//	    return call()
//	})
//
// Rejected executions return a *CircuitBreakerError matching ErrCircuitOpen.
package reliability
