package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/daemon"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/log"
	"go.uber.org/zap"
)

func main() {
	config.Init("marketplaced")
	defer log.Flush()

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() {
		if err := container.Delete(); err != nil {
			zap.L().With(zap.Error(err)).Warn("Failed to close container")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().With(zap.String("marketplace", container.GetMarketplaceAddress().String())).Info("Marketplace Started")

	if err := daemon.NewDaemon(container).Execute(ctx); err != nil {
		zap.L().With(zap.Error(err)).Error("Marketplace stopped with error")
		log.Flush()
		os.Exit(1)
	}
}
