package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Provider modes.
const (
	ModeSimulation = "simulation"
	ModeSerial     = "serial"
	ModeHybrid     = "hybrid"
)

type Config struct {
	FactoryID   string            `yaml:"factory_id"`
	Debug       bool              `yaml:"debug"`
	Line        LineConfig        `yaml:"line"`
	Provider    ProviderConfig    `yaml:"provider"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Web         WebConfig         `yaml:"web"`
}

type LineConfig struct {
	ID               string        `yaml:"id"`
	Route            []string      `yaml:"route"`
	Posts            []PostConfig  `yaml:"posts"`
	Transit          time.Duration `yaml:"transit"`
	StrictSequential bool          `yaml:"strict_sequential"`
	FallbackTU       time.Duration `yaml:"fallback_tu"`
	LowStockRatio    float64       `yaml:"low_stock_ratio"`
	Slice            time.Duration `yaml:"slice"`
	AbortOnError     bool          `yaml:"abort_on_error"`
}

// PostConfig seeds a post when the database has no row for it. TU is in seconds.
type PostConfig struct {
	Code     string  `yaml:"code"`
	Capacity int     `yaml:"capacity"`
	Stock    int     `yaml:"stock"`
	TU       float64 `yaml:"tu"`
}

type ProviderConfig struct {
	Mode       string           `yaml:"mode"`
	Serial     SerialConfig     `yaml:"serial"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type SerialConfig struct {
	Port          string        `yaml:"port"`
	Baud          int           `yaml:"baud"`
	Newline       string        `yaml:"newline"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	GatingTimeout time.Duration `yaml:"gating_timeout"`
}

type SimulationConfig struct {
	Tick   time.Duration `yaml:"tick"`
	Seed   int64         `yaml:"seed"`
	Robots []string      `yaml:"robots"`
}

type MaintenanceConfig struct {
	OptimalInterval time.Duration `yaml:"optimal_interval"`
}

type RealtimeConfig struct {
	Interval            time.Duration `yaml:"interval"`
	IncidentProbability float64       `yaml:"incident_probability"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MessagingConfig struct {
	Backend     string      `yaml:"backend"` // "none", "mqtt", "kafka"
	TopicPrefix string      `yaml:"topic_prefix"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// ArchiveConfig points at an S3-compatible bucket that receives an xlsx
// report of every finished order.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Defaults returns a configuration that runs a three-post simulated line
// against a local sqlite file.
func Defaults() *Config {
	return &Config{
		FactoryID: "plant-1",
		Line: LineConfig{
			ID:    "line-1",
			Route: []string{"P1", "P2", "P3"},
			Posts: []PostConfig{
				{Code: "P1", Capacity: 50, Stock: 50, TU: 60},
				{Code: "P2", Capacity: 50, Stock: 50, TU: 60},
				{Code: "P3", Capacity: 50, Stock: 50, TU: 60},
			},
			Transit:       2 * time.Second,
			FallbackTU:    30 * time.Second,
			LowStockRatio: 0.20,
			Slice:         100 * time.Millisecond,
		},
		Provider: ProviderConfig{
			Mode: ModeSimulation,
			Serial: SerialConfig{
				Baud:        9600,
				Newline:     "\n",
				ReadTimeout: 500 * time.Millisecond,
			},
			Simulation: SimulationConfig{
				Tick:   2 * time.Second,
				Robots: []string{"AGV-1"},
			},
		},
		Maintenance: MaintenanceConfig{OptimalInterval: 14 * 24 * time.Hour},
		Realtime: RealtimeConfig{
			Interval:            5 * time.Second,
			IncidentProbability: 0.02,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "lineflow.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Redis: RedisConfig{Address: "localhost:6379"},
		Messaging: MessagingConfig{
			Backend:     "none",
			TopicPrefix: "lineflow",
			MQTT:        MQTTConfig{Broker: "localhost", Port: 1883, ClientID: "lineflow"},
		},
		Archive: ArchiveConfig{Region: "us-east-1", Bucket: "lineflow-reports", Prefix: "orders"},
		Web:     WebConfig{Host: "0.0.0.0", Port: 8090},
	}
}

// Load reads a YAML config file on top of Defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to disk.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate normalizes and checks the config in place.
func (c *Config) Validate() error {
	c.Provider.Mode = strings.ToLower(strings.TrimSpace(c.Provider.Mode))
	switch c.Provider.Mode {
	case "":
		c.Provider.Mode = ModeSimulation
	case ModeSimulation, ModeSerial, ModeHybrid:
	default:
		return fmt.Errorf("%w: unknown provider mode %q", ErrInvalidConfig, c.Provider.Mode)
	}
	if (c.Provider.Mode == ModeSerial || c.Provider.Mode == ModeHybrid) && c.Provider.Serial.Port == "" {
		return fmt.Errorf("%w: provider mode %s requires serial.port", ErrInvalidConfig, c.Provider.Mode)
	}
	if c.Provider.Serial.Newline == "" {
		c.Provider.Serial.Newline = "\n"
	}
	if len(c.Line.Route) == 0 {
		return fmt.Errorf("%w: line.route is empty", ErrInvalidConfig)
	}
	if c.Line.LowStockRatio <= 0 || c.Line.LowStockRatio >= 1 {
		c.Line.LowStockRatio = 0.20
	}
	if c.Line.Slice <= 0 {
		c.Line.Slice = 100 * time.Millisecond
	}
	if c.Maintenance.OptimalInterval <= 0 {
		c.Maintenance.OptimalInterval = 14 * 24 * time.Hour
	}
	if c.Realtime.IncidentProbability < 0 || c.Realtime.IncidentProbability > 1 {
		return fmt.Errorf("%w: realtime.incident_probability must be within [0,1]", ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	switch c.Messaging.Backend {
	case "", "none", "mqtt", "kafka":
	default:
		return fmt.Errorf("%w: unsupported messaging backend %q", ErrInvalidConfig, c.Messaging.Backend)
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		return fmt.Errorf("%w: archive requires endpoint and bucket", ErrInvalidConfig)
	}
	return nil
}

// PostConfig returns the seed configuration for code, if any.
func (l *LineConfig) PostConfig(code string) (PostConfig, bool) {
	for _, p := range l.Posts {
		if p.Code == code {
			return p, true
		}
	}
	return PostConfig{}, false
}
