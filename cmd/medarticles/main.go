package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MedArticles/internal/app"
	"MedArticles/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context, path string) (cli.Service, error) {
		a, err := app.Build(ctx, path)
		if err != nil {
			return nil, err
		}
		return a, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintln(os.Stderr, "medarticles:", err)
		}
		stop()
		os.Exit(1)
	}
}
