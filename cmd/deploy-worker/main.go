package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pubgate/gateway/cmd/deploy-worker/worker"
	"github.com/pubgate/gateway/common/bootstrap"
	"github.com/pubgate/gateway/common/configstore"
	"github.com/pubgate/gateway/common/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "deploy-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap deploy-worker: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	w := worker.New(
		components.Config,
		repository.NewTaskRepository(components.DB),
		repository.NewPublishedPathRepository(components.DB),
		configstore.New(components.Redis, components.Logger),
		components.Broker,
		components.Logger,
	)

	if err := w.Register(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register worker actors: %v\n", err)
		os.Exit(1)
	}

	components.Logger.Info("deploy-worker running")

	// Block until interrupted
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	components.Logger.Info("deploy-worker stopping")
	cancel()
}
