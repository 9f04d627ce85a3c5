package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/tempmon/internal/backend"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TempMon server",
	Long: `Run the TempMon server that:
- Accepts measurement submissions over HTTP
- Serves the measurement query API
- Optionally consumes submissions from RabbitMQ
- Persists data to PostgreSQL
- Serves the gRPC health service`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server-specific flags
	serveCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serveCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serveCmd.Flags().String("db-password", "postgres", "PostgreSQL password")
	serveCmd.Flags().String("db-name", "TempMon", "PostgreSQL database name")
	serveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serveCmd.Flags().Int("db-max-open-conns", 10, "Maximum open database connections")
	serveCmd.Flags().Int("db-max-idle-conns", 2, "Maximum idle database connections")
	serveCmd.Flags().Duration("db-conn-max-lifetime", 30*time.Minute, "Maximum database connection lifetime")
	serveCmd.Flags().Int("http-port", 9247, "HTTP API port")
	serveCmd.Flags().Int("grpc-port", 9248, "gRPC health port")
	serveCmd.Flags().String("amqp-url", "", "RabbitMQ URL; queue ingestion is disabled when empty")
	serveCmd.Flags().String("queue-name", "measurements", "RabbitMQ ingestion queue name")
	serveCmd.Flags().Bool("queue-durable", true, "Declare the ingestion queue as durable")

	// Bind flags to viper
	_ = viper.BindPFlag("serve.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("serve.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("serve.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("serve.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("serve.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("serve.db.sslmode", serveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("serve.db.max_open_conns", serveCmd.Flags().Lookup("db-max-open-conns"))
	_ = viper.BindPFlag("serve.db.max_idle_conns", serveCmd.Flags().Lookup("db-max-idle-conns"))
	_ = viper.BindPFlag("serve.db.conn_max_lifetime", serveCmd.Flags().Lookup("db-conn-max-lifetime"))
	_ = viper.BindPFlag("serve.http.port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("serve.grpc.port", serveCmd.Flags().Lookup("grpc-port"))
	_ = viper.BindPFlag("serve.rabbitmq.url", serveCmd.Flags().Lookup("amqp-url"))
	_ = viper.BindPFlag("serve.rabbitmq.queue_name", serveCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("serve.rabbitmq.durable", serveCmd.Flags().Lookup("queue-durable"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting tempmon server")

	// Create server configuration from viper
	config := &backend.ServerConfig{
		Logger:            logger,
		DBHost:            viper.GetString("serve.db.host"),
		DBPort:            viper.GetInt("serve.db.port"),
		DBUser:            viper.GetString("serve.db.user"),
		DBPassword:        viper.GetString("serve.db.password"),
		DBName:            viper.GetString("serve.db.name"),
		DBSSLMode:         viper.GetString("serve.db.sslmode"),
		DBMaxOpenConns:    viper.GetInt("serve.db.max_open_conns"),
		DBMaxIdleConns:    viper.GetInt("serve.db.max_idle_conns"),
		DBConnMaxLifetime: viper.GetDuration("serve.db.conn_max_lifetime"),
		HTTPPort:          viper.GetInt("serve.http.port"),
		GRPCPort:          viper.GetInt("serve.grpc.port"),
		AMQPURL:           viper.GetString("serve.rabbitmq.url"),
		QueueName:         viper.GetString("serve.rabbitmq.queue_name"),
		QueueDurable:      viper.GetBool("serve.rabbitmq.durable"),
	}

	// Create and run server
	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return err
	}

	logger.Info("server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"http_port", config.HTTPPort,
		"grpc_port", config.GRPCPort,
		"amqp_enabled", config.AMQPURL != "",
		"queue", config.QueueName,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
