package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceName       string   `mapstructure:"-"`
	Port              string   `mapstructure:"port"`
	LogLevel          string   `mapstructure:"log_level"`
	PostgresURL       string   `mapstructure:"postgres_url"`
	DBSchema          string   `mapstructure:"db_schema"`
	KafkaBrokers      []string `mapstructure:"-"`
	EventsTopic       string   `mapstructure:"events_topic"`
	ConsumerGroup     string   `mapstructure:"consumer_group"`
	OrdersServiceURL  string   `mapstructure:"orders_service_url"`
	CatalogServiceURL string   `mapstructure:"catalog_service_url"`
	EmailServiceURL   string   `mapstructure:"email_service_url"`
	OTLPEndpoint      string   `mapstructure:"otel_exporter_otlp_endpoint"`
	LowStockThreshold int      `mapstructure:"low_stock_threshold"`
	StrictTransitions bool     `mapstructure:"orders_strict_transitions"`
	AdminEmail        string   `mapstructure:"admin_email"`
	MigrationsPath    string   `mapstructure:"migrations_path"`
	ServiceVersion    string   `mapstructure:"service_version"`

	// TrustIdentityHeaders makes the gateway forward the caller's identity
	// headers. Enable it only behind an authenticating proxy that sets them.
	TrustIdentityHeaders bool `mapstructure:"gateway_trust_identity_headers"`
}

var defaults = map[string]any{
	"port":                           "8080",
	"log_level":                      "info",
	"postgres_url":                   "",
	"db_schema":                      "ecomarket",
	"kafka_brokers":                  "",
	"events_topic":                   "ecomarket.events",
	"consumer_group":                 "notification-worker",
	"orders_service_url":             "",
	"catalog_service_url":            "",
	"email_service_url":              "",
	"otel_exporter_otlp_endpoint":    "localhost:4317",
	"low_stock_threshold":            5,
	"orders_strict_transitions":      true,
	"admin_email":                    "inventory@example.com",
	"gateway_trust_identity_headers": false,
	"migrations_path":                "file://migrations",
	"service_version":                "0.1.0",
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists. defaultPort overrides the
// global port default for the named service.
func Load(serviceName, defaultPort string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if defaultPort != "" {
		v.SetDefault("port", defaultPort)
	}
	v.AutomaticEnv()

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ServiceName = serviceName
	cfg.KafkaBrokers = splitList(v.GetString("kafka_brokers"))

	if cfg.LowStockThreshold < 0 {
		return nil, fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative, got %d", cfg.LowStockThreshold)
	}

	return &cfg, nil
}

// Require returns an error naming the first empty variable among names.
func (c *Config) Require(names ...string) error {
	values := map[string]string{
		"POSTGRES_URL":        c.PostgresURL,
		"KAFKA_BROKERS":       strings.Join(c.KafkaBrokers, ","),
		"ORDERS_SERVICE_URL":  c.OrdersServiceURL,
		"CATALOG_SERVICE_URL": c.CatalogServiceURL,
		"EMAIL_SERVICE_URL":   c.EmailServiceURL,
	}
	for _, name := range names {
		value, known := values[name]
		if !known {
			return fmt.Errorf("unknown configuration key %s", name)
		}
		if value == "" {
			return fmt.Errorf("%s environment variable is required", name)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
