// Package main runs the ragbench worker, which scores batches of golden
// question/answer rows against an LLM in the background. Besides the long
// running poll loop it offers one-shot commands for operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// options selects what the binary does. At most one command flag may be set;
// without one the worker polls until it receives a signal.
type options struct {
	migrate bool
	once    bool
	process string
	cancel  string
	status  string
	submit  string
}

var errUsage = errors.New("usage error")

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.migrate, "migrate", false, "apply database migrations and exit")
	fs.BoolVar(&opts.once, "once", false, "claim and process at most one task, then exit")
	fs.StringVar(&opts.process, "process", "", "process an already claimed task by `id`")
	fs.StringVar(&opts.cancel, "cancel", "", "cancel a queued or processing task by `id`")
	fs.StringVar(&opts.status, "status", "", "print the state of a task by `id`")
	fs.StringVar(&opts.submit, "submit", "", "queue the task described by a JSON `file`")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	set := 0
	for _, on := range []bool{
		opts.migrate, opts.once, opts.process != "", opts.cancel != "", opts.status != "", opts.submit != "",
	} {
		if on {
			set++
		}
	}
	if set > 1 {
		return options{}, fmt.Errorf("%w: only one command flag may be given", errUsage)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		slog.Error("worker exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
