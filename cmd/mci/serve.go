package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/franz/music-indexer/internal/protocol"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the line-delimited JSON protocol on stdin/stdout",
	Long: `Run the service as a child process speaking the line-delimited JSON
protocol: one request object per line on stdin, one response object per
line on stdout, correlated by id. Logs go to stderr only.

Requests are handled concurrently, so responses may arrive in a
different order than their requests. Long scans additionally emit
progress event frames tagged with the request id.

The loop ends when stdin is closed or on SIGINT/SIGTERM; in-flight
requests are answered before the process exits.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The bar would scribble over stderr logs and the protocol already
	// reports progress as frames.
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	return protocol.New(a).Serve(ctx, os.Stdin, os.Stdout)
}
