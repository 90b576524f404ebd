// Command gnssctl drives a running gnss-adapterd over its control gRPC API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "gnssctl:", err)
		stop()
		os.Exit(1)
	}
}
