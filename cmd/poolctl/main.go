// poolctl runs and exercises a threadpool worker pool.
//
// Usage:
//
//	poolctl [global options] <command> [command options]
//
// Commands:
//
//	bench   run synthetic tasks on a fresh pool and report throughput
//	serve   run a pool fed by cron schedules and an optional Redis list,
//	        exposing Prometheus metrics, until SIGINT or SIGTERM
//
// Exit codes:
//
//	0: success
//	1: command failed
//	2: invalid arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// Set with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "poolctl",
		Usage:     "run and exercise a fixed-size worker pool",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (.yaml, .yml or .json)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "override log.format (text, json)",
			},
		},
		Commands: []*cli.Command{
			createBenchCommand(),
			createServeCommand(),
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp(stdout, stderr).Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "poolctl: %v\n", err)
		if tperrors.IsValidationError(err) || errors.Is(err, tperrors.ErrInvalidConfiguration) {
			return 2
		}
		return 1
	}
	return 0
}
