// Package config loads connmon's YAML defaults (thresholds and the
// optional persistence/messaging connection settings), which the CLI flags
// in cmd/connmon then override, mirroring the teacher's
// internal/config.LoadConfig shape.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClickHouseConfig configures the optional persistent Observation sink /
// query backend (domain-stack addition to spec.md, see SPEC_FULL.md §2).
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig configures the optional probe pub/sub transport (domain-stack
// addition, see SPEC_FULL.md §2).
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig configures cmd/connmon-api's HTTP listener.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Monitor holds the thresholds named in spec.md §6's CLI flag table; CLI
// flags in cmd/connmon override whichever of these are set non-zero.
type Monitor struct {
	SumInterval float64 `yaml:"sum_interval"`
	RtdMaxAge   float64 `yaml:"rtd_max_age"`
	FlowMaxIdle float64 `yaml:"flow_max_idle"`
	MaxFlows    int     `yaml:"max_flows"`
}

// Config is the top-level configuration struct for the connmon binaries.
type Config struct {
	Monitor    Monitor          `yaml:"monitor"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
}

// Default returns the spec.md-mandated defaults (sumInt=10, rtdMaxAge=10,
// flowMaxIdle=300) used when no config file is supplied.
func Default() Config {
	return Config{
		Monitor: Monitor{
			SumInterval: 10,
			RtdMaxAge:   10,
			FlowMaxIdle: 300,
			MaxFlows:    10000,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "connmon.packets.raw",
		},
		API: APIConfig{ListenAddr: ":8088"},
	}
}

// Load reads the configuration from a YAML file, filling in spec.md's
// defaults for anything the file doesn't set.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", filePath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", filePath, err)
	}
	return &cfg, nil
}
