package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"customerWs/internal/config"
	"customerWs/internal/modules/events/application/handler"
	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/application/usecase"
	eventsdomain "customerWs/internal/modules/events/domain"
	eventsinfra "customerWs/internal/modules/events/infrastructure"
	"customerWs/internal/modules/realtime/infrastructure"
	transport "customerWs/internal/modules/realtime/interface"
	"customerWs/internal/platform/broker"
	"customerWs/internal/shared/auth"
	"customerWs/internal/shared/logging"
)

func main() {
	// Attempt to load variables from .env so local runs honour configuration tweaks.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logFile, logger, err := setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	slog.Info("logging initialized", slog.String("directory", cfg.Logging.Directory), slog.String("level", cfg.Logging.Level), slog.String("format", cfg.Logging.Format))
	slog.Info("kafka config resolved", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("group", cfg.Kafka.GroupID), slog.Bool("enabled", cfg.Kafka.Enabled()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topics := eventsdomain.TopicSet{
		Events:        cfg.Kafka.Topics.Events,
		Notifications: cfg.Kafka.Topics.Notifications,
		Analytics:     cfg.Kafka.Topics.Analytics,
	}
	slog.Info("kafka topics", slog.Any("topics", topics.All()))

	// Customer store (optional)
	var store *eventsinfra.MongoCustomerStore
	var mongoClient *mongo.Client
	if cfg.Mongo.Enabled() {
		mongoClient, err = connectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			slog.Error("mongo connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		store = eventsinfra.NewMongoCustomerStore(mongoClient.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
		slog.Info("mongo customer store ready", slog.String("database", cfg.Mongo.Database), slog.String("collection", cfg.Mongo.Collection))
	} else {
		slog.Warn("MONGO_URI not set, customer_update and profile provisioning disabled")
	}

	// Durable log producer
	publisher := broker.NewKafkaPublisher(broker.PublisherConfig{
		Brokers:      cfg.Kafka.Brokers,
		ClientID:     cfg.Kafka.ClientID,
		Topics:       topics,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	})
	if cfg.Kafka.Enabled() {
		initCtx, initCancel := context.WithTimeout(ctx, cfg.Kafka.WriteTimeout)
		if err := publisher.Initialize(initCtx); err != nil {
			// Publishing reports ErrNotInitialized until a restart; live fan-out keeps working.
			slog.Error("kafka publisher initialize failed", slog.Any("error", err))
		}
		initCancel()
	} else {
		slog.Warn("KAFKA_BROKERS not set, durable log disabled")
	}

	// Realtime gateway
	gatewayOpts := []infrastructure.GatewayOption{}
	validator, err := auth.NewJWTValidator(cfg.Security.JWTSecret, cfg.Security.JWTPublicKey)
	if err != nil {
		slog.Error("jwt validator setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	if validator != nil {
		gatewayOpts = append(gatewayOpts, infrastructure.WithTokenValidator(validator))
	}

	// The gateway needs the update use case and the use case publishes
	// through the gateway, so the updater is bound after both exist.
	var updateUC *usecase.UpdateCustomerUseCase
	if store != nil {
		gatewayOpts = append(gatewayOpts, infrastructure.WithCustomerUpdater(port.CustomerUpdaterFunc(
			func(ctx context.Context, customerID string, updateData map[string]any) (*eventsdomain.Customer, error) {
				return updateUC.UpdateCustomer(ctx, customerID, updateData)
			})))
	}
	gw := infrastructure.NewGateway(infrastructure.GatewayConfig{
		PingInterval: cfg.Websocket.PingInterval,
		WriteTimeout: cfg.Websocket.WriteTimeout,
		SendBuffer:   cfg.Websocket.SendBuffer,
		ReadLimit:    cfg.Websocket.ReadLimit,
		MessageRate:  cfg.Websocket.MessageRate,
		MessageBurst: cfg.Websocket.MessageBurst,
	}, gatewayOpts...)
	go gw.Run(ctx)

	// Use cases
	bus := usecase.NewEventBus(usecase.NewEventPublisher(publisher, cfg.ServiceName), gw)
	if store != nil {
		updateUC = usecase.NewUpdateCustomerUseCase(store, bus)
	}

	// Consumer handlers per topic
	registry := broker.NewHandlerRegistry()
	eventsRouter := handler.NewEventRouter(topics.Events)
	userRegistered := &handler.UserRegisteredHandler{}
	if store != nil {
		userRegistered.Provisioner = store
	}
	eventsRouter.Register(eventsdomain.UserRegistered, userRegistered)
	registry.Register(eventsRouter)
	registry.Register(handler.NewNotificationsHandler(topics.Notifications, gw))
	registry.Register(handler.NewAnalyticsHandler(topics.Analytics))
	consumersDone := broker.StartKafkaConsumers(ctx, registry, cfg.Kafka.Brokers, cfg.Kafka.GroupID)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(log.Writer())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	e.GET(cfg.Websocket.Path, transport.NewWebsocketHandler(gw))
	e.POST("/events", transport.NewPublishHTTPHandler(bus))
	e.GET("/health", transport.NewHealthHandler(gw, publisher))

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", slog.Any("error", err))
		}
	}()
	slog.Info("server started", slog.String("port", cfg.Server.Port), slog.String("wsPath", cfg.Websocket.Path))

	// Wait for signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.Any("error", err))
	}
	gw.Shutdown()
	cancel()
	select {
	case <-consumersDone:
	case <-shutdownCtx.Done():
		slog.Warn("kafka consumers did not stop in time")
	}
	if err := publisher.Close(); err != nil {
		slog.Warn("kafka publisher close", slog.Any("error", err))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			slog.Warn("mongo disconnect", slog.Any("error", err))
		}
	}
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func setupLogging(cfg config.LoggingConfig) (*os.File, *slog.Logger, error) {
	dir := cfg.Directory
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	fileName := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".log")
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	writer := io.MultiWriter(os.Stdout, file)
	logger := logging.New(writer, logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: true,
	})
	log.SetOutput(writer)
	log.SetFlags(0)
	log.SetPrefix("")

	return file, logger, nil
}
