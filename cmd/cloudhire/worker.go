package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pavelanni/cloudhire/internal/events"
)

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume submission events from RabbitMQ and generate reports",
		RunE:  runWorker,
	}
	addDBFlag(cmd)
	addPipelineFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	url := v.GetString("amqp-url")
	if url == "" {
		return errors.New("worker requires --amqp-url (or CLOUDHIRE_AMQP_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	bus, err := events.DialAMQP(url)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := a.processor.ProcessPending(ctx); err != nil {
		return fmt.Errorf("process pending submissions: %w", err)
	}

	err = bus.Consume(ctx, v.GetInt("workers"), a.processor.HandleEvent)
	if errors.Is(err, context.Canceled) {
		slog.Info("worker stopped")
		return nil
	}
	return err
}
