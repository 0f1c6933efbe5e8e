// Package main is the entry point for the tailnym binary.
//
// tailnym keeps a local pseudonym → (username, ip, port) table for SSH access
// and can populate it from the server-tagged peers of a Tailscale tailnet.
//
// Usage:
//
//	tailnym                      # interactive pseudonym picker
//	tailnym add box1 --ip ...    # register a pseudonym
//	tailnym refresh --quiet      # pull server peers from tailscale status
//	tailnym run box1 --tmux dev  # interactive session, tmux on the remote
//
// The CLI is constructed in internal/cli; this file wires it to signal
// handling and top-level error reporting.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"tailnym/internal/cli"
)

func main() {
	// An interrupt cancels the command context so in-flight probes and the
	// session process are torn down instead of dumping a stack.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
