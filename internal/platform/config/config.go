package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	GPSEnabled    bool          `env:"GPS_ENABLED" default:"true"`
	GPSDevice     string        `env:"GPS_DEVICE" default:"/dev/ttyUSB0"`
	GPSBaud       int           `env:"GPS_BAUD" default:"9600"`
	GPSStaleAfter time.Duration `env:"GPS_STALE_AFTER" default:"5s"`

	// Fixed position reported when GPS is disabled. Both zero means no fix.
	StaticLatitude  float64 `env:"STATIC_LATITUDE" default:"0"`
	StaticLongitude float64 `env:"STATIC_LONGITUDE" default:"0"`

	PublishInterval time.Duration `env:"PUBLISH_INTERVAL" default:"5s"`

	MaxClients          int     `env:"MAX_CLIENTS" default:"100"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"10"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"5"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"10"`

	SendBufferSize int           `env:"SEND_BUFFER_SIZE" default:"16"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	// Comma-separated origins allowed to open /ws besides the server's own.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

// IsDevelopment reports whether APP_ENV is "development".
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOriginList splits AllowedOrigins, dropping blanks.
func (c *Config) AllowedOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return origins
}

// HasStaticPosition reports whether a fixed position was configured.
func (c *Config) HasStaticPosition() bool {
	return c.StaticLatitude != 0 || c.StaticLongitude != 0
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.GPSEnabled && cfg.GPSDevice == "" {
		return errors.New("GPS_DEVICE is required when GPS_ENABLED is true")
	}

	positive := map[string]time.Duration{
		"GPS_STALE_AFTER":  cfg.GPSStaleAfter,
		"PUBLISH_INTERVAL": cfg.PublishInterval,
		"WRITE_TIMEOUT":    cfg.WriteTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	counts := map[string]int{
		"MAX_CLIENTS":            cfg.MaxClients,
		"MAX_CONNECTIONS_PER_IP": cfg.MaxConnectionsPerIP,
		"CONNECTION_BURST":       cfg.ConnectionBurst,
		"SEND_BUFFER_SIZE":       cfg.SendBufferSize,
	}
	for name, value := range counts {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}

	if cfg.ConnectionRate <= 0 {
		return errors.New("CONNECTION_RATE must be positive")
	}

	if cfg.StaticLatitude < -90 || cfg.StaticLatitude > 90 {
		return fmt.Errorf("STATIC_LATITUDE must be between -90 and 90, got %v", cfg.StaticLatitude)
	}
	if cfg.StaticLongitude < -180 || cfg.StaticLongitude > 180 {
		return fmt.Errorf("STATIC_LONGITUDE must be between -180 and 180, got %v", cfg.StaticLongitude)
	}

	return nil
}
