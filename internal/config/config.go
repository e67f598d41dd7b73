// Package config loads the master's configuration, layering a YAML file
// under cobra-bound command-line flags, using the spec's literal
// configuration key names as Go field names.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized configuration keys (spec §6).
type Config struct {
	MasterPort      int           `yaml:"Hypertable.Master.Port"`
	MasterWorkers   int           `yaml:"Hypertable.Master.Workers"`
	MasterReactors  int           `yaml:"Hypertable.Master.Reactors"`
	GcInterval      time.Duration `yaml:"Hypertable.Master.Gc.Interval"`
	MonitorInterval time.Duration `yaml:"Hypertable.Monitoring.Interval"`
	RequestTimeout  time.Duration `yaml:"Hypertable.Request.Timeout"`
	RangeSplitSize  int64         `yaml:"Hypertable.RangeServer.Range.SplitSize"`
	Directory       string        `yaml:"Hypertable.Directory"`
	DataDirectory   string        `yaml:"Hypertable.DataDirectory"`

	LogLevel  string `yaml:"-"`
	LogJSON   bool   `yaml:"-"`
	TestMode  bool   `yaml:"-"`
}

// Default returns the configuration used when no file is supplied,
// matching the values the original master ships with.
func Default() *Config {
	return &Config{
		MasterPort:      15865,
		MasterWorkers:   4,
		MasterReactors:  2,
		GcInterval:      1 * time.Hour,
		MonitorInterval: 30 * time.Second,
		RequestTimeout:  30 * time.Second,
		RangeSplitSize:  200 * 1024 * 1024,
		Directory:       "/hypertable",
		DataDirectory:   "./data",
		LogLevel:        "info",
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; it simply leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
