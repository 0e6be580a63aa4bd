// Package rpc provides blocking, correlated request/response calls over an
// asynchronous message broker.
//
// A Dispatcher turns a fire-and-forget publish into a call-and-wait API:
//
//	d, err := rpc.NewDispatcher(session, rpc.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	outcome, err := d.Call(ctx, rpc.Request{
//	    Exchange:    "platform",
//	    RoutingKey:  "creationRequested",
//	    ContentType: "application/json",
//	    Body:        body,
//	    Timeout:     2 * time.Second,
//	})
//	switch outcome.Kind {
//	case rpc.OutcomeSuccess:
//	    // outcome.Body holds the raw reply
//	case rpc.OutcomeUnroutable:
//	    // nobody is consuming the routing key
//	case rpc.OutcomeTimeout:
//	    // a consumer exists but did not answer in time
//	case rpc.OutcomeTransportFailure:
//	    // err describes the broker failure
//	}
//
// Every call gets its own server-named, exclusive, auto-delete reply queue
// and a fresh correlation id. Requests are published with the mandatory flag
// so the broker returns them when no queue is bound to the routing key; the
// UnroutableDetector turns those returns into an immediate Unroutable outcome
// instead of letting the caller sit out the whole timeout.
//
// The Registry is the single owner of in-flight call state. Whichever of the
// ReplyMatcher, the UnroutableDetector or the dispatcher's timeout removes an
// entry first wins; the others become no-ops.
package rpc
