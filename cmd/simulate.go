package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/tempmon/internal/producer"
	"procodus.dev/tempmon/pkg/metrics"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the sensor simulator",
	Long: `Run the sensor simulator that:
- Creates a fleet of fake room sensors
- Generates correlated temperature and humidity readings
- Submits them over HTTP or publishes them to RabbitMQ`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	// Simulator-specific flags
	simulateCmd.Flags().Int("devices", 5, "Number of simulated sensors")
	simulateCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings of one sensor")
	simulateCmd.Flags().String("target", "http://localhost:9247/request", "Ingestion URL")
	simulateCmd.Flags().String("amqp-url", "", "RabbitMQ URL; publishes to the queue instead of the target when set")
	simulateCmd.Flags().String("queue-name", "measurements", "RabbitMQ ingestion queue name")
	simulateCmd.Flags().Bool("queue-durable", true, "Declare the ingestion queue as durable")

	// Bind flags to viper
	_ = viper.BindPFlag("simulate.devices", simulateCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("simulate.interval", simulateCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulate.target", simulateCmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("simulate.rabbitmq.url", simulateCmd.Flags().Lookup("amqp-url"))
	_ = viper.BindPFlag("simulate.rabbitmq.queue_name", simulateCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulate.rabbitmq.durable", simulateCmd.Flags().Lookup("queue-durable"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator")

	config := &producer.ServerConfig{
		Logger:       logger,
		Target:       viper.GetString("simulate.target"),
		AMQPURL:      viper.GetString("simulate.rabbitmq.url"),
		QueueName:    viper.GetString("simulate.rabbitmq.queue_name"),
		QueueDurable: viper.GetBool("simulate.rabbitmq.durable"),
		Devices:      viper.GetInt("simulate.devices"),
		Interval:     viper.GetDuration("simulate.interval"),
		Metrics:      metrics.NewSimulatorMetrics("tempmon", nil),
		MQMetrics:    metrics.NewMQMetrics("tempmon", nil),
	}

	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	logger.Info("simulator configuration",
		"target", config.Target,
		"amqp_enabled", config.AMQPURL != "",
		"devices", config.Devices,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
