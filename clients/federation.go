package clients

import (
	"context"
	"fmt"

	"github.com/glimte/mmate-rpc/rpc"
)

// FederationNotifier publishes federation lifecycle events. Events are fire
// and forget: nobody replies and unroutable events are dropped by the broker.
type FederationNotifier struct {
	publisher Publisher
	routes    FederationRoutes
	opts      options
}

// NewFederationNotifier creates a notifier
func NewFederationNotifier(publisher Publisher, routes FederationRoutes, opts ...Option) *FederationNotifier {
	return &FederationNotifier{publisher: publisher, routes: routes, opts: newOptions(opts)}
}

// Created announces a new federation
func (n *FederationNotifier) Created(ctx context.Context, federation Federation) error {
	return n.publishJSON(ctx, n.routes.Created, federation)
}

// Changed announces an updated federation
func (n *FederationNotifier) Changed(ctx context.Context, federation Federation) error {
	return n.publishJSON(ctx, n.routes.Changed, federation)
}

// Deleted announces a removed federation. The body is the bare id.
func (n *FederationNotifier) Deleted(ctx context.Context, federationID string) error {
	n.opts.logger.Debug("publishing federation event", "routingKey", n.routes.Deleted.RoutingKey, "federationId", federationID)
	return n.publish(ctx, n.routes.Deleted, "", []byte(federationID))
}

func (n *FederationNotifier) publishJSON(ctx context.Context, route Route, federation Federation) error {
	body, err := json.Marshal(federation)
	if err != nil {
		return fmt.Errorf("encode federation %s: %w", federation.ID, err)
	}
	n.opts.logger.Debug("publishing federation event", "routingKey", route.RoutingKey, "federationId", federation.ID)
	return n.publish(ctx, route, rpc.ContentTypeJSON, body)
}

func (n *FederationNotifier) publish(ctx context.Context, route Route, contentType string, body []byte) error {
	err := n.publisher.Publish(ctx, rpc.Envelope{
		Exchange:    route.Exchange,
		RoutingKey:  route.RoutingKey,
		ContentType: contentType,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish federation event to %s: %w", route.RoutingKey, err)
	}
	return nil
}
