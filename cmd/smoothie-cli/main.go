// Smoothie CLI — инструмент командной строки для заказов,
// роботов и сигналов завершения через HTTP API.
//
// Использование:
//
//	smoothie [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	order     Заказы: submit, show, list
//	robot     Роботы: list, register, set-status
//	complete  Ручной сигнал завершения по task token
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/smoothie-dispatch/internal/cli"
	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var amqpURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "smoothie",
		Short:         "Smoothie CLI — order dispatch tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAMQP := os.Getenv("RABBITMQ_URL")
	if defaultAMQP == "" {
		defaultAMQP = mq.DefaultURL()
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8083", "API server URL")
	rootCmd.PersistentFlags().StringVar(&amqpURL, "amqp-url", defaultAMQP, "RabbitMQ URL (for --via-mq)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	queueFn := func() (cli.OrderQueue, func(), error) {
		logger := telemetry.NewLogger(os.Stderr, "warn", "text")

		conn, err := mq.NewConnection(mq.ConnectionConfig{
			URL:    amqpURL,
			Name:   "smoothie-cli",
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to RabbitMQ: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("setup topology: %w", err)
		}

		return mq.NewPublisher(conn, logger), func() { conn.Close() }, nil
	}

	rootCmd.AddCommand(
		cli.NewOrderCmd(clientFn, outputFn, queueFn),
		cli.NewRobotCmd(clientFn, outputFn),
		cli.NewCompleteCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
