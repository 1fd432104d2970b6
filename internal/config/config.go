package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/core/port"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // console|json
}

type Calls struct {
	LeaveGrace      time.Duration `yaml:"leaveGrace"`
	DisconnectGrace time.Duration `yaml:"disconnectGrace"`
}

// Policy overrides the delivery options of one notification kind.
type Policy struct {
	Retries         int           `yaml:"retries"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	Window          time.Duration `yaml:"window"`
	SameData        bool          `yaml:"sameData"`
	PrecallWait     time.Duration `yaml:"precallWait"`
	ExpectedReplies int           `yaml:"expectedReplies"`
	NoErrorOnFail   bool          `yaml:"noErrorOnFailure"`
}

func (p Policy) Options() port.DeliveryOptions {
	return port.DeliveryOptions{
		Retries:          p.Retries,
		Timeout:          p.Timeout,
		RetryDelay:       p.RetryDelay,
		Aggregation:      port.Aggregation{Window: p.Window, SameData: p.SameData},
		PrecallWait:      p.PrecallWait,
		ExpectedReplies:  p.ExpectedReplies,
		NoErrorOnFailure: p.NoErrorOnFail,
	}
}

// Delivery holds optional per-notification overrides. Nil entries keep
// the built-in policy.
type Delivery struct {
	Ring         *Policy `yaml:"ring"`
	Rering       *Policy `yaml:"rering"`
	IceCandidate *Policy `yaml:"iceCandidate"`
	SDPUpdate    *Policy `yaml:"sdpUpdate"`
	Members      *Policy `yaml:"members"`
	End          *Policy `yaml:"end"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

type Telemetry struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

func (t Telemetry) Enabled() bool {
	return t.Endpoint != ""
}

type Auth struct {
	// Supervisors may act on calls they are not invited to.
	Supervisors []string `yaml:"supervisors"`
}

type Profile struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Icon  string `yaml:"icon"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
	Calls     Calls     `yaml:"calls"`
	Delivery  Delivery  `yaml:"delivery"`
	Kafka     Kafka     `yaml:"kafka"`
	Telemetry Telemetry `yaml:"telemetry"`
	Auth      Auth      `yaml:"auth"`
	Profiles  []Profile `yaml:"profiles"`
}

// LoadConfig reads the YAML file at $CONFIG_PATH (./config/config.yaml by
// default), applies environment overrides and fills defaults. A missing
// file is not an error.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Calls.LeaveGrace <= 0 {
		c.Calls.LeaveGrace = 5 * time.Second
	}
	if c.Calls.DisconnectGrace <= 0 {
		c.Calls.DisconnectGrace = 30 * time.Second
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		c.Kafka.Topic = "calls.events"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "yacall"
	}
	if c.Telemetry.SampleRatio <= 0 || c.Telemetry.SampleRatio > 1 {
		c.Telemetry.SampleRatio = 1
	}
	for i, p := range c.Profiles {
		if p.ID == "" {
			return fmt.Errorf("profiles[%d].id is required", i)
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
