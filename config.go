package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// ModuleType names the attached module variant (e.g. "SARA-R5")
	ModuleType string
	// RefreshInterval is the period of the background radio parameter poll
	RefreshInterval time.Duration
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ModuleType = "SARA-R5"
		c.RefreshInterval = 30 * time.Second
		return nil
	}
}

// fileConfig mirrors Config for the yaml configuration file. Durations are
// given in time.ParseDuration notation (e.g. "30s").
type fileConfig struct {
	BindAddress     string `yaml:"bindAddress"`
	SerialPort      string `yaml:"serialPort"`
	BaudRate        int    `yaml:"baudRate"`
	LogLevel        string `yaml:"logLevel"`
	ModuleType      string `yaml:"moduleType"`
	RefreshInterval string `yaml:"refreshInterval"`
}

// WithFile loads configuration from a yaml file. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse config file %q: %w", path, err)
		}

		if fc.BindAddress != "" {
			c.BindAddress = fc.BindAddress
		}
		if fc.SerialPort != "" {
			c.SerialPort = fc.SerialPort
		}
		if fc.BaudRate != 0 {
			c.BaudRate = fc.BaudRate
		}
		if fc.LogLevel != "" {
			c.LogLevel = fc.LogLevel
		}
		if fc.ModuleType != "" {
			c.ModuleType = fc.ModuleType
		}
		if fc.RefreshInterval != "" {
			d, err := time.ParseDuration(fc.RefreshInterval)
			if err != nil {
				return fmt.Errorf("parse refreshInterval: %w", err)
			}
			c.RefreshInterval = d
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if module := os.Getenv("MODULE_TYPE"); module != "" {
			c.ModuleType = module
		}

		if interval := os.Getenv("REFRESH_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.RefreshInterval = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "module-type":
				c.ModuleType = f.Value.String()
			case "refresh-interval":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.RefreshInterval = d
				}
			}

		})
		return nil
	}

}
