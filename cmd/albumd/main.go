// Command albumd serves the photo-album session endpoints: password login, per-namespace
// whoami and logout, and engine metrics.
//
// Usage:
//
//	albumd serve --config Settings.toml
//	albumd hash-password
//	albumd keygen
//
// Configuration is read from ./Settings.{toml,yaml,json} and ALBUMD_* environment variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
