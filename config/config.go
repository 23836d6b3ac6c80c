package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"` // CORS для /rooms, /health
	Debug          bool          `yaml:"debug"`          // /debug/invariants
}

type GRPC struct {
	Addr         string        `yaml:"addr"`
	UnaryTimeout time.Duration `yaml:"unaryTimeout"`
}

type WS struct {
	PingEvery       time.Duration `yaml:"pingEvery"`
	WriteWait       time.Duration `yaml:"writeWait"`
	SendBuffer      int           `yaml:"sendBuffer"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // roomcast
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	HTTP            HTTP          `yaml:"http"`
	GRPC            GRPC          `yaml:"grpc"`
	WS              WS            `yaml:"ws"`
	Logging         Logging       `yaml:"logging"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

const defaultPath = "./config/config.yaml"

// LoadConfig читает YAML из CONFIG_PATH (по умолчанию ./config/config.yaml).
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.GRPC.UnaryTimeout == 0 {
		c.GRPC.UnaryTimeout = 10 * time.Second
	}
	if c.WS.PingEvery == 0 {
		c.WS.PingEvery = 15 * time.Second
	}
	if c.WS.WriteWait == 0 {
		c.WS.WriteWait = 5 * time.Second
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.MaxMessageBytes == 0 {
		c.WS.MaxMessageBytes = 64 << 10
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "roomcast"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.GRPC.Addr == "" {
		errs = append(errs, errors.New("grpc.addr is required"))
	}
	if c.WS.SendBuffer < 0 {
		errs = append(errs, errors.New("ws.sendBuffer must be positive"))
	}
	if c.WS.MaxMessageBytes < 0 {
		errs = append(errs, errors.New("ws.maxMessageBytes must be positive"))
	}
	if c.WS.PingEvery < 0 || c.WS.WriteWait < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	switch c.Logging.Backend {
	case "std", "zap":
	default:
		errs = append(errs, fmt.Errorf("logging.backend %q: want std or zap", c.Logging.Backend))
	}
	return errors.Join(errs...)
}
