package main

import (
	"fmt"
	"log/slog"
	"os"

	"catalog/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cmd := NewRootCommand(func(url string) (Transport, error) {
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: url}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
