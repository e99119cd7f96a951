// Package main is the entry point for the majak build tool.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/majak-build/majak/cmd/majak/commands"
	"github.com/majak-build/majak/internal/adapters/logger"
	"github.com/majak-build/majak/internal/app"
	"github.com/majak-build/majak/internal/core/domain"
	"github.com/majak-build/majak/internal/core/ports"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr, logger.New()))
}

func run(ctx context.Context, args []string, stderr io.Writer, log ports.Logger) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(app.New(log))
	cli.SetArgs(args)
	cli.SetOutput(os.Stdout, stderr)

	if err := cli.Execute(ctx); err != nil {
		if errors.Is(err, domain.ErrInterrupted) {
			return 2
		}
		if errors.Is(err, context.Canceled) {
			return 2
		}
		log.Error(err)
		return 1
	}
	return 0
}
