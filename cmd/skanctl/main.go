package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/agentskan/internal/skanctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := skanctl.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("skanctl: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
