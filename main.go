// goftp - A command-line FTP client with native SSH tunneling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"goftp/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "goftp: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
