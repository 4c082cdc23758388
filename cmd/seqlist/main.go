// Spins up the seqlist server, serving named lists over the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/seqlist/pkg/config"
	"github.com/nobletooth/seqlist/pkg/port"
	"github.com/nobletooth/seqlist/pkg/storage"
	"github.com/nobletooth/seqlist/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Seqlist build info.", utils.BuildInfo()...)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := storage.NewListStore()
	if err := port.RunRedisServer(ctx, store); err != nil {
		slog.Error("Seqlist server stopped.", "err", err)
		os.Exit(1)
	}
	slog.Info("Seqlist server stopped.")
}
