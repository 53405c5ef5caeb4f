package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServiceName string
	Server      ServerConfig
	Logging     LoggingConfig
	Websocket   WebsocketConfig
	Kafka       KafkaConfig
	Security    SecurityConfig
	Mongo       MongoConfig
}

type ServerConfig struct {
	Port string
}

type LoggingConfig struct {
	Level     string
	Format    string
	Directory string
}

// WebsocketConfig drives the realtime gateway. The eviction grace period is
// derived from PingInterval: a silent connection survives at most two sweeps.
type WebsocketConfig struct {
	Path         string
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	ReadLimit    int64
	MessageRate  float64
	MessageBurst int
}

type KafkaConfig struct {
	Brokers      []string
	ClientID     string
	GroupID      string
	Topics       TopicsConfig
	MaxAttempts  int
	WriteTimeout time.Duration
}

type TopicsConfig struct {
	Events        string
	Notifications string
	Analytics     string
}

type SecurityConfig struct {
	JWTSecret    string
	JWTPublicKey string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// Enabled reports whether a broker list was configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Enabled reports whether a mongo connection string was configured.
func (m MongoConfig) Enabled() bool {
	return strings.TrimSpace(m.URI) != ""
}

// Load builds Config from the environment. Values already loaded from .env by
// the caller are visible through the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVICE_NAME", "customer-service")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_DIRECTORY", "./logs")
	v.SetDefault("WS_PATH", "/ws")
	v.SetDefault("WS_PING_INTERVAL", 30000)
	v.SetDefault("WS_WRITE_TIMEOUT", 10000)
	v.SetDefault("WS_SEND_BUFFER", 32)
	v.SetDefault("WS_READ_LIMIT", 1<<16)
	v.SetDefault("WS_MESSAGE_RATE", 0)
	v.SetDefault("WS_MESSAGE_BURST", 20)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_BROKER", "")
	v.SetDefault("KAFKA_CLIENT_ID", "customer-service")
	v.SetDefault("KAFKA_GROUP_ID", "customer-service-group")
	v.SetDefault("KAFKA_TOPIC_EVENTS", "customer-events")
	v.SetDefault("KAFKA_TOPIC_NOTIFICATIONS", "customer-notifications")
	v.SetDefault("KAFKA_TOPIC_ANALYTICS", "customer-analytics")
	v.SetDefault("KAFKA_MAX_ATTEMPTS", 5)
	v.SetDefault("KAFKA_WRITE_TIMEOUT", 10000)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "customers")
	v.SetDefault("MONGO_COLLECTION", "customers")

	brokers := splitList(v.GetString("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		brokers = splitList(v.GetString("KAFKA_BROKER"))
	}

	cfg := &Config{
		ServiceName: strings.TrimSpace(v.GetString("SERVICE_NAME")),
		Server: ServerConfig{
			Port: strings.TrimSpace(v.GetString("PORT")),
		},
		Logging: LoggingConfig{
			Level:     v.GetString("LOG_LEVEL"),
			Format:    v.GetString("LOG_FORMAT"),
			Directory: v.GetString("LOG_DIRECTORY"),
		},
		Websocket: WebsocketConfig{
			Path:         strings.TrimSpace(v.GetString("WS_PATH")),
			PingInterval: millis(v.GetInt("WS_PING_INTERVAL")),
			WriteTimeout: millis(v.GetInt("WS_WRITE_TIMEOUT")),
			SendBuffer:   v.GetInt("WS_SEND_BUFFER"),
			ReadLimit:    v.GetInt64("WS_READ_LIMIT"),
			MessageRate:  v.GetFloat64("WS_MESSAGE_RATE"),
			MessageBurst: v.GetInt("WS_MESSAGE_BURST"),
		},
		Kafka: KafkaConfig{
			Brokers:  brokers,
			ClientID: strings.TrimSpace(v.GetString("KAFKA_CLIENT_ID")),
			GroupID:  strings.TrimSpace(v.GetString("KAFKA_GROUP_ID")),
			Topics: TopicsConfig{
				Events:        strings.TrimSpace(v.GetString("KAFKA_TOPIC_EVENTS")),
				Notifications: strings.TrimSpace(v.GetString("KAFKA_TOPIC_NOTIFICATIONS")),
				Analytics:     strings.TrimSpace(v.GetString("KAFKA_TOPIC_ANALYTICS")),
			},
			MaxAttempts:  v.GetInt("KAFKA_MAX_ATTEMPTS"),
			WriteTimeout: millis(v.GetInt("KAFKA_WRITE_TIMEOUT")),
		},
		Security: SecurityConfig{
			JWTSecret:    strings.TrimSpace(v.GetString("JWT_SECRET")),
			JWTPublicKey: v.GetString("JWT_PUBLIC_KEY"),
		},
		Mongo: MongoConfig{
			URI:        strings.TrimSpace(v.GetString("MONGO_URI")),
			Database:   strings.TrimSpace(v.GetString("MONGO_DATABASE")),
			Collection: strings.TrimSpace(v.GetString("MONGO_COLLECTION")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.ServiceName == "" {
		return errors.New("config: SERVICE_NAME must be set")
	}
	if !strings.HasPrefix(c.Websocket.Path, "/") {
		return fmt.Errorf("config: WS_PATH must start with '/', got %q", c.Websocket.Path)
	}
	if c.Websocket.PingInterval <= 0 {
		return errors.New("config: WS_PING_INTERVAL must be positive")
	}
	if c.Websocket.SendBuffer <= 0 {
		return errors.New("config: WS_SEND_BUFFER must be positive")
	}
	if c.Websocket.MessageRate < 0 {
		return errors.New("config: WS_MESSAGE_RATE must not be negative")
	}
	if c.Kafka.MaxAttempts <= 0 {
		c.Kafka.MaxAttempts = 1
	}
	t := c.Kafka.Topics
	if t.Events == "" || t.Notifications == "" || t.Analytics == "" {
		return errors.New("config: kafka topic names must not be empty")
	}
	if t.Events == t.Notifications || t.Events == t.Analytics || t.Notifications == t.Analytics {
		return errors.New("config: kafka topic names must be distinct")
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
