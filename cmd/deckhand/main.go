package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/deckhand/internal/cmd"
	"github.com/felixgeelhaar/deckhand/internal/exitcode"
	"github.com/felixgeelhaar/deckhand/internal/ux"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitcode.Success
	}
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\nOperation cancelled")
		return exitcode.Interrupted
	}

	ux.PrintError(os.Stderr, err, os.Getenv("NO_COLOR") != "")
	return exitcode.For(err)
}
