// Package rabbitmq holds the AMQP plumbing behind the RabbitMQ broker session.
//
//   - ConnectionManager: dials the broker, redials with backoff and notifies state listeners
//   - ChannelPool: short-lived channels for topology operations
//   - Publisher: a dedicated confirm-mode channel that fans basic.return out to handlers
//   - Consumer: one channel per consumption, with basic.cancel on Cancel and loss reporting
//   - TopologyManager: exchanges, service queues and per-call reply queues
package rabbitmq
