package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mmaterpc "github.com/glimte/mmate-rpc"
	"github.com/glimte/mmate-rpc/rpc"
	rabbitmqTransport "github.com/glimte/mmate-rpc/transports/rabbitmq"
)

func newRespondCommand(a *app) *cobra.Command {
	var (
		reply        string
		contentType  string
		delay        time.Duration
		exchangeType string
		queue        string
		declare      bool
	)

	cmd := &cobra.Command{
		Use:   "respond <exchange> <routing-key>",
		Short: "Answer requests with a fixed reply until interrupted",
		Long: `Bind a queue to the exchange and routing key and answer every request on its
reply queue. Without --reply the request body is echoed back.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, err := mmaterpc.NewClientFromConfig(ctx, a.cfg, mmaterpc.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			opts := []rabbitmqTransport.ResponderOption{rabbitmqTransport.WithExchangeType(exchangeType)}
			if queue != "" {
				opts = append(opts, rabbitmqTransport.WithQueueName(queue))
			}
			if !declare {
				opts = append(opts, rabbitmqTransport.WithoutExchangeDeclare())
			}

			responder, err := client.Session().Respond(ctx, args[0], args[1], func(ctx context.Context, req rpc.Envelope) (string, []byte, error) {
				a.logger.Info("request received",
					"correlationId", req.CorrelationID,
					"replyTo", req.ReplyTo,
					"bytes", len(req.Body),
				)
				if delay > 0 {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return "", nil, ctx.Err()
					}
				}
				if reply == "" {
					return req.ContentType, req.Body, nil
				}
				return contentType, []byte(reply), nil
			}, opts...)
			if err != nil {
				return fmt.Errorf("failed to start responder: %w", err)
			}
			defer responder.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Responding on %s/%s (queue %s). Press Ctrl+C to stop.\n", args[0], args[1], responder.Queue())

			select {
			case <-ctx.Done():
				return nil
			case err := <-responder.Lost():
				return fmt.Errorf("responder stopped: %w", err)
			}
		},
	}

	cmd.Flags().StringVarP(&reply, "reply", "r", "", "Fixed reply body (default: echo the request)")
	cmd.Flags().StringVarP(&contentType, "content-type", "t", rpc.ContentTypeJSON, "Content type of the fixed reply")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Wait before answering")
	cmd.Flags().StringVar(&exchangeType, "exchange-type", "topic", "Type used when declaring the exchange")
	cmd.Flags().StringVar(&queue, "queue", "", "Queue name (default: server-named)")
	cmd.Flags().BoolVar(&declare, "declare-exchange", true, "Declare the exchange before binding")
	return cmd
}
