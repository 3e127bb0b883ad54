package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSlots is the slot count given to items when the config file
// does not list one (a 50x50 grid).
const DefaultSlots = 2500

type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Items  []ItemConfig `yaml:"items"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type StreamConfig struct {
	HandshakeTimeout time.Duration `yaml:"-"`
	WriteTimeout     time.Duration `yaml:"-"`
	QueueSize        int           `yaml:"-"`
	ShutdownGrace    time.Duration `yaml:"-"`
}

// UnmarshalYAML reads durations in time.ParseDuration form ("5s",
// "100ms"). Absent fields keep whatever value the struct already holds,
// which is how the defaults survive the merge in Load.
func (s *StreamConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		HandshakeTimeout string `yaml:"handshake_timeout"`
		WriteTimeout     string `yaml:"write_timeout"`
		QueueSize        *int   `yaml:"queue_size"`
		ShutdownGrace    string `yaml:"shutdown_grace"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	set := func(dst *time.Duration, field, value string) error {
		if value == "" {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: stream.%s: %w", field, err)
		}
		*dst = d
		return nil
	}
	if err := set(&s.HandshakeTimeout, "handshake_timeout", raw.HandshakeTimeout); err != nil {
		return err
	}
	if err := set(&s.WriteTimeout, "write_timeout", raw.WriteTimeout); err != nil {
		return err
	}
	if err := set(&s.ShutdownGrace, "shutdown_grace", raw.ShutdownGrace); err != nil {
		return err
	}
	if raw.QueueSize != nil {
		s.QueueSize = *raw.QueueSize
	}
	return nil
}

// ItemConfig declares one counter: its wire id and how many slots it has.
// Item order in the file is significant: it fixes the order of the
// initial sync sent to every new stream client.
type ItemConfig struct {
	ID    int `yaml:"id"`
	Slots int `yaml:"slots"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Stream: StreamConfig{
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     10 * time.Second,
			QueueSize:        64,
			ShutdownGrace:    5 * time.Second,
		},
	}
	for id := 0; id < 20; id++ {
		cfg.Items = append(cfg.Items, ItemConfig{ID: id, Slots: DefaultSlots})
	}
	cfg.Items = append(cfg.Items, ItemConfig{ID: 99, Slots: DefaultSlots})
	return cfg
}

// Load reads the yaml config at path over the defaults, then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	cfg.Items = nil // an items list in the file replaces the defaults entirely
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if len(cfg.Items) == 0 {
		cfg.Items = defaultConfig().Items
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("config: no items configured")
	}
	seen := make(map[int]bool, len(c.Items))
	for i := range c.Items {
		it := &c.Items[i]
		if it.ID < 0 || it.ID > 65535 {
			return fmt.Errorf("config: item id %d outside 0..65535", it.ID)
		}
		if seen[it.ID] {
			return fmt.Errorf("config: duplicate item id %d", it.ID)
		}
		seen[it.ID] = true
		if it.Slots == 0 {
			it.Slots = DefaultSlots
		}
		if it.Slots < 1 || it.Slots > 65535 {
			return fmt.Errorf("config: item %d slot count %d outside 1..65535", it.ID, it.Slots)
		}
	}
	if c.Stream.HandshakeTimeout <= 0 {
		return fmt.Errorf("config: handshake_timeout must be positive")
	}
	if c.Stream.WriteTimeout <= 0 {
		return fmt.Errorf("config: write_timeout must be positive")
	}
	if c.Stream.QueueSize < 1 {
		return fmt.Errorf("config: queue_size must be at least 1")
	}
	return nil
}
