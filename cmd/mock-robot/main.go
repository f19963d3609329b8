// Mock Robot — имитация флота роботов-блендеров.
//
// Mock Robot:
//   - Слушает очередь команд каждого робота в RabbitMQ
//   - Готовит смузи заданное время
//   - Отправляет сигнал завершения с task token
//
// --silent имитирует зависшего робота: команды принимаются без ответа.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/smoothie-dispatch/internal/config"
	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/robot"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "mock-robot",
		Short:         "Simulated blender robots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", os.Getenv("SMOOTHIE_CONFIG"), "Config file")
	flags.StringSlice("robots", nil, "Robot names (default: robot.names from config)")
	flags.Duration("make-time", 0, "Time to make one smoothie")
	flags.Float64("fail-rate", 0, "Probability of a failed smoothie (0..1)")
	flags.Bool("silent", false, "Accept commands without replying")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		// Флаги перекрывают конфиг, только если заданы явно.
		if cmd.Flags().Changed("robots") {
			cfg.Robot.Names, _ = cmd.Flags().GetStringSlice("robots")
		}
		if cmd.Flags().Changed("make-time") {
			cfg.Robot.MakeTime, _ = cmd.Flags().GetDuration("make-time")
		}
		if cmd.Flags().Changed("fail-rate") {
			cfg.Robot.FailRate, _ = cmd.Flags().GetFloat64("fail-rate")
		}
		if cmd.Flags().Changed("silent") {
			cfg.Robot.Silent, _ = cmd.Flags().GetBool("silent")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		return run(cfg)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting mock-robot", "robots", cfg.Robot.Names, "make_time", cfg.Robot.MakeTime)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ — без него роботу нечего слушать
	conn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    cfg.RabbitMQ.URL,
		Name:   "mock-robot",
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	setupCtx, setupCancel := context.WithTimeout(ctx, 10*time.Second)
	defer setupCancel()
	if err := mq.SetupTopology(setupCtx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	sim := robot.New(robot.Config{
		Names:    cfg.Robot.Names,
		Conn:     conn,
		Reporter: mq.NewPublisher(conn, logger),
		Maker: &robot.BlenderMaker{
			MakeTime: cfg.Robot.MakeTime,
			FailRate: cfg.Robot.FailRate,
		},
		Silent: cfg.Robot.Silent,
		Logger: logger,
	})

	if err := sim.Start(ctx); err != nil {
		return fmt.Errorf("start robots: %w", err)
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sim.Stop()
	logger.Info("mock-robot stopped", "handled", sim.Handled())
	return nil
}
