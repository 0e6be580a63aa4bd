package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	mmaterpc "github.com/glimte/mmate-rpc"
	"github.com/glimte/mmate-rpc/rpc"
)

var (
	errUnroutable = errors.New("request was unroutable")
	errTimedOut   = errors.New("request timed out")
)

func newCallCommand(a *app) *cobra.Command {
	var (
		body        string
		bodyFile    string
		contentType string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <exchange> <routing-key>",
		Short: "Send a request and wait for the reply",
		Long: `Send a request with the mandatory flag and print the outcome. The command
exits non-zero when the request is unroutable, times out or fails.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(body)
			if bodyFile != "" {
				var err error
				if payload, err = readBody(bodyFile); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			client, err := mmaterpc.NewClientFromConfig(ctx, a.cfg, mmaterpc.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			outcome, err := client.Call(ctx, rpc.Request{
				Exchange:    args[0],
				RoutingKey:  args[1],
				ContentType: contentType,
				Body:        payload,
				Timeout:     timeout,
			})
			printOutcome(cmd.OutOrStdout(), outcome)
			return outcomeError(outcome, err)
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "Request body")
	cmd.Flags().StringVarP(&bodyFile, "body-file", "f", "", "Read the request body from a file, - for stdin")
	cmd.Flags().StringVarP(&contentType, "content-type", "t", rpc.ContentTypeJSON, "Content type of the request")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Reply timeout (default from rabbit.timeoutMillis)")
	return cmd
}

func readBody(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return data, nil
}

func printOutcome(w io.Writer, outcome rpc.Outcome) {
	fmt.Fprintf(w, "Outcome: %s\n", outcome.Kind)
	if outcome.Status != 0 {
		fmt.Fprintf(w, "Status:  %d\n", outcome.Status)
	}
	if outcome.ContentType != "" {
		fmt.Fprintf(w, "Type:    %s\n", outcome.ContentType)
	}
	if outcome.Kind == rpc.OutcomeSuccess {
		fmt.Fprintf(w, "\n%s\n", outcome.Body)
	}
}

func outcomeError(outcome rpc.Outcome, err error) error {
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case rpc.OutcomeUnroutable:
		return errUnroutable
	case rpc.OutcomeTimeout:
		return errTimedOut
	}
	return nil
}
