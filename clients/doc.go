// Package clients provides typed request/reply clients for the platform
// registry and the authentication and authorization manager, plus the
// federation event notifier. Each client encodes its request as JSON, calls
// through an rpc.Dispatcher and maps the call outcome to Go errors:
//
//	resp, err := registry.CreatePlatform(ctx, platform)
//	switch {
//	case errors.Is(err, clients.ErrUnreachable):
//		// no registry instance is bound to the routing key
//	case errors.Is(err, clients.ErrTimeout):
//		// the registry did not answer in time
//	}
package clients
