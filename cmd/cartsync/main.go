// cmd/cartsync/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/client/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx, cli.NewRootCommand(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
