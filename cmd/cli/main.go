package main

import (
	"os"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/log"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"go.uber.org/zap"
)

func main() {
	config.Init("cli")
	defer log.Flush()

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() { _ = container.Delete() }()

	app := newApp(
		container.GetClient(),
		func() (repository.ActionRepository, error) {
			if _, err := container.GetElastic(); err != nil {
				return nil, err
			}
			return container.GetActionRepo(), nil
		},
		func() (messenger.MessageService, error) {
			return container.GetMessenger(), nil
		},
		os.Stdout,
	)

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Error("Command failed")
		log.Flush()
		os.Exit(1)
	}
}
