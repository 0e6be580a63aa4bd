// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mmaterpc wires a RabbitMQ session, the request dispatcher and the
// typed service clients into one Client.
package mmaterpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/glimte/mmate-rpc/clients"
	"github.com/glimte/mmate-rpc/config"
	"github.com/glimte/mmate-rpc/health"
	"github.com/glimte/mmate-rpc/internal/rabbitmq"
	"github.com/glimte/mmate-rpc/internal/reliability"
	"github.com/glimte/mmate-rpc/rpc"
	rabbitmqTransport "github.com/glimte/mmate-rpc/transports/rabbitmq"
)

// Client provides the main entry point for mmate-rpc
type Client struct {
	broker     rpc.Broker
	session    *rabbitmqTransport.Session
	dispatcher *rpc.Dispatcher
	registry   *clients.RegistryClient
	aam        *clients.AAMClient
	federation *clients.FederationNotifier
	health     *health.Registry
	logger     *slog.Logger

	healthTimeout time.Duration
	ownsBroker    bool
}

// NewClient connects to RabbitMQ at connectionString and builds a client on
// the session
func NewClient(connectionString string, options ...ClientOption) (*Client, error) {
	return NewClientContext(context.Background(), connectionString, options...)
}

// NewClientContext is NewClient bounded by ctx while connecting
func NewClientContext(ctx context.Context, connectionString string, options ...ClientOption) (*Client, error) {
	cfg := newClientConfig(options)

	sessionOpts := append([]rabbitmqTransport.SessionOption{rabbitmqTransport.WithLogger(cfg.logger)}, cfg.sessionOptions...)
	session, err := rabbitmqTransport.Open(ctx, connectionString, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	client, err := build(session, cfg)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	client.session = session
	client.ownsBroker = true
	client.health.Register(health.NewSessionChecker(session))
	return client, nil
}

// NewClientFromConfig builds a client from loaded configuration. options are
// applied after the configuration and win over it.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, options ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rabbit := cfg.Rabbit
	fromConfig := []ClientOption{
		WithDefaultTimeout(rabbit.Timeout()),
		WithTeardownTimeout(rabbit.TeardownTimeout),
		WithRoutes(cfg.Routes),
		WithAdminCredentials(clients.Credentials{Username: cfg.AAM.Username, Password: cfg.AAM.Password}),
		WithHealthTimeout(cfg.Health.Timeout),
		WithPendingThreshold(cfg.Health.PendingThreshold),
		WithSessionOptions(
			rabbitmqTransport.WithConnectionOptions(
				rabbitmq.WithDialTimeout(rabbit.DialTimeout),
				rabbitmq.WithReconnectDelay(rabbit.ReconnectDelay),
				rabbitmq.WithMaxRetries(rabbit.MaxRetries),
			),
			rabbitmqTransport.WithPoolOptions(rabbitmq.WithMaxSize(rabbit.PoolSize)),
			rabbitmqTransport.WithPublisherOptions(rabbitmq.WithConfirmTimeout(rabbit.ConfirmTimeout)),
		),
	}

	if cfg.Breaker.Enabled {
		fromConfig = append(fromConfig, WithCircuitBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.OpenTimeout))
	}

	return NewClientContext(ctx, rabbit.URL, append(fromConfig, options...)...)
}

// NewClientWithBroker builds a client on an existing broker, such as the
// in-memory one. Close does not close the broker.
func NewClientWithBroker(broker rpc.Broker, options ...ClientOption) (*Client, error) {
	if broker == nil {
		return nil, rpc.ErrNilBroker
	}
	return build(broker, newClientConfig(options))
}

func build(broker rpc.Broker, cfg *clientConfig) (*Client, error) {
	dispatcherOpts := []rpc.DispatcherOption{
		rpc.WithLogger(cfg.logger),
		rpc.WithMetrics(cfg.metrics),
		rpc.WithDefaultTimeout(cfg.defaultTimeout),
	}
	if cfg.teardownTimeout > 0 {
		dispatcherOpts = append(dispatcherOpts, rpc.WithTeardownTimeout(cfg.teardownTimeout))
	}

	dispatcher, err := rpc.NewDispatcher(broker, dispatcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	checks := health.NewRegistry(health.NewDispatcherChecker(dispatcher, cfg.pendingThreshold))
	clientOpts := func(service string) []clients.Option {
		opts := []clients.Option{clients.WithLogger(cfg.logger)}
		if cfg.breakerThreshold > 0 {
			breaker := newBreaker(service, cfg)
			checks.Register(breakerChecker(breaker))
			opts = append(opts, clients.WithGuard(breaker))
		}
		return opts
	}

	return &Client{
		broker:        broker,
		dispatcher:    dispatcher,
		registry:      clients.NewRegistryClient(dispatcher, cfg.routes.Registry, clientOpts("registry")...),
		aam:           clients.NewAAMClient(dispatcher, cfg.routes.AAM, cfg.admin, clientOpts("aam")...),
		federation:    clients.NewFederationNotifier(dispatcher, cfg.routes.Federation, clients.WithLogger(cfg.logger)),
		health:        checks,
		logger:        cfg.logger,
		healthTimeout: cfg.healthTimeout,
	}, nil
}

func newBreaker(service string, cfg *clientConfig) *reliability.CircuitBreaker {
	breaker := reliability.NewCircuitBreaker(
		reliability.WithName(service),
		reliability.WithFailureThreshold(cfg.breakerThreshold),
		reliability.WithTimeout(cfg.breakerTimeout),
		reliability.WithFailureClassifier(clients.ServiceDown),
	)
	breaker.AddListener(breakerLogger{logger: cfg.logger, service: service})
	return breaker
}

type breakerLogger struct {
	logger  *slog.Logger
	service string
}

func (l breakerLogger) OnStateChange(from, to reliability.State, reason string) {
	l.logger.Warn("circuit breaker state changed",
		"service", l.service,
		"from", from.String(),
		"to", to.String(),
		"reason", reason,
	)
}

// breakerChecker reports degraded while the circuit is not closed
func breakerChecker(breaker *reliability.CircuitBreaker) health.Checker {
	return health.NewComponentChecker(breaker.Name()+"_breaker", func(ctx context.Context) (health.Status, string, map[string]interface{}, error) {
		s := breaker.Snapshot()
		details := map[string]interface{}{
			"state":          s.State.String(),
			"failures":       s.CurrentFailures,
			"total_requests": s.Requests,
			"total_failures": s.Failures,
		}
		if s.State != reliability.StateClosed {
			return health.StatusDegraded, fmt.Sprintf("circuit %s", s.State), details, nil
		}
		return health.StatusHealthy, "circuit closed", details, nil
	})
}

// Call performs a blocking request/reply call
func (c *Client) Call(ctx context.Context, req rpc.Request) (rpc.Outcome, error) {
	return c.dispatcher.Call(ctx, req)
}

// CallAsync performs a call on its own goroutine
func (c *Client) CallAsync(ctx context.Context, req rpc.Request, listener rpc.Listener) *rpc.Future {
	return c.dispatcher.CallAsync(ctx, req, listener)
}

// Dispatcher returns the request dispatcher
func (c *Client) Dispatcher() *rpc.Dispatcher {
	return c.dispatcher
}

// Session returns the RabbitMQ session, or nil when the client was built on
// another broker
func (c *Client) Session() *rabbitmqTransport.Session {
	return c.session
}

// Registry returns the platform registry client
func (c *Client) Registry() *clients.RegistryClient {
	return c.registry
}

// AAM returns the authentication and authorization manager client
func (c *Client) AAM() *clients.AAMClient {
	return c.aam
}

// Federation returns the federation event notifier
func (c *Client) Federation() *clients.FederationNotifier {
	return c.federation
}

// Health runs every registered check within the configured health timeout
func (c *Client) Health(ctx context.Context) health.Report {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	return c.health.Check(ctx)
}

// RegisterHealthCheck adds a custom check to Health
func (c *Client) RegisterHealthCheck(checker health.Checker) {
	c.health.Register(checker)
}

// Close fails in-flight calls and releases the session the client opened
func (c *Client) Close() error {
	var result *multierror.Error
	if err := c.dispatcher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close dispatcher: %w", err))
	}
	if closer, ok := c.broker.(io.Closer); ok && c.ownsBroker {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close session: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// clientConfig holds client configuration
type clientConfig struct {
	logger           *slog.Logger
	metrics          rpc.MetricsCollector
	defaultTimeout   time.Duration
	teardownTimeout  time.Duration
	routes           clients.Routes
	admin            clients.Credentials
	healthTimeout    time.Duration
	pendingThreshold int
	breakerThreshold int
	breakerTimeout   time.Duration
	sessionOptions   []rabbitmqTransport.SessionOption
}

func newClientConfig(options []ClientOption) *clientConfig {
	cfg := &clientConfig{
		logger:           slog.Default(),
		metrics:          &rpc.NoOpMetricsCollector{},
		defaultTimeout:   rpc.DefaultTimeout,
		routes:           clients.DefaultRoutes(),
		healthTimeout:    5 * time.Second,
		pendingThreshold: 1000,
		breakerTimeout:   30 * time.Second,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithMetrics sets the dispatcher metrics collector
func WithMetrics(metrics rpc.MetricsCollector) ClientOption {
	return func(cfg *clientConfig) {
		cfg.metrics = metrics
	}
}

// WithDefaultTimeout sets the timeout of calls that do not set their own
func WithDefaultTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.defaultTimeout = timeout
	}
}

// WithTeardownTimeout bounds reply queue deletion after each call
func WithTeardownTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.teardownTimeout = timeout
	}
}

// WithRoutes replaces the service routes used by the typed clients
func WithRoutes(routes clients.Routes) ClientOption {
	return func(cfg *clientConfig) {
		cfg.routes = routes
	}
}

// WithAdminCredentials sets the credentials the AAM client sends
func WithAdminCredentials(admin clients.Credentials) ClientOption {
	return func(cfg *clientConfig) {
		cfg.admin = admin
	}
}

// WithHealthTimeout bounds a Health run
func WithHealthTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.healthTimeout = timeout
	}
}

// WithPendingThreshold sets the pending call count above which the
// dispatcher reports degraded
func WithPendingThreshold(threshold int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.pendingThreshold = threshold
	}
}

// WithCircuitBreaker guards the registry and AAM clients with circuit
// breakers that open after failureThreshold consecutive timeouts or
// unroutable requests
func WithCircuitBreaker(failureThreshold int, openTimeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.breakerThreshold = failureThreshold
		if openTimeout > 0 {
			cfg.breakerTimeout = openTimeout
		}
	}
}

// WithSessionOptions passes options to the RabbitMQ session
func WithSessionOptions(opts ...rabbitmqTransport.SessionOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.sessionOptions = append(cfg.sessionOptions, opts...)
	}
}
