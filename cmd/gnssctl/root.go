package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/gnss-adapter/internal/nbi"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Addr     string
	ClientID string
	Timeout  time.Duration
	Format   string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gnssctl",
		Short: "Control a GNSS adapter daemon",
		Long:  "gnssctl sends commands to gnss-adapterd and streams its location reports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "localhost:50061", "control gRPC address")
	cmd.PersistentFlags().StringVar(&opts.ClientID, "client", "gnssctl", "client id to act as")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newTrackCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newNiCommand(opts))
	cmd.AddCommand(newInjectLocationCommand(opts))
	cmd.AddCommand(newSvCommand(opts))

	return cmd
}

// dial connects to the daemon; the caller closes the connection.
func (o *rootOptions) dial(ctx context.Context) (*grpc.ClientConn, *nbi.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, o.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", o.Addr, err)
	}
	return conn, nbi.NewClient(conn), nil
}
