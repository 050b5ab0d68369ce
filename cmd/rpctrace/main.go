// Command rpctrace spawns a child process and prints every RPC it exchanges
// with its traced destination port, in the manner of strace's syscall trace
// but for Mach-style IPC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	outputPath  string
	metricsAddr string
	logLevel    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rpctrace -- COMMAND [ARG...]",
		Short: "Trace the RPCs a command's process exchanges with its destination port",
		Args:  cobra.MinimumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log-level %q: %w", logLevel, err)
			}
			log.SetLevel(level)
			return nil
		},
		RunE: runRoot,
	}

	root.Flags().StringVarP(&outputPath, "output", "o", "", "write the trace to this file instead of stderr")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics and /ping, /ready on this address")
	root.Flags().StringVar(&logLevel, "log-level", log.InfoLevel.String(), "log level, one of: panic, fatal, error, warn, info, debug")

	return root
}

func runRoot(cmd *cobra.Command, args []string) error {
	out := os.Stderr
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			exitCodeErr = 1
			return fmt.Errorf("rpctrace: %w", err)
		}
		defer f.Close()
		code, err := spawnAndTraceTo(cmd.Context(), f, args)
		exitCodeErr = code
		return err
	}

	code, err := spawnAndTraceTo(cmd.Context(), out, args)
	exitCodeErr = code
	return err
}

func spawnAndTraceTo(ctx context.Context, out *os.File, args []string) (int, error) {
	return spawnAndTrace(ctx, out, metricsAddr, args[0], args[1:])
}

// exitCodeErr carries the process exit code RunE decided on past cobra,
// which only distinguishes "error" (exit 1) from "no error" (exit 0).
var exitCodeErr int

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SilenceUsage = true
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCodeErr == 0 {
			exitCodeErr = 1
		}
		os.Exit(exitCodeErr)
	}
	os.Exit(exitCodeErr)
}
