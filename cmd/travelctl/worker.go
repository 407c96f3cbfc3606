package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"travel-intel/internal/tracer"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consolidate destinations as sessions are announced over NATS, until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			shutdownTracer := tracer.InitTracer("worker")
			defer shutdownTracer(context.Background())

			c, err := loadContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := c.ConsumerService.Consume(ctx); err != nil {
				return err
			}
			fmt.Println(good("worker running"), "- waiting for SESSION_WRITTEN events")
			<-ctx.Done()
			fmt.Println(warn("worker stopping"))
			return nil
		},
	}
}
