// Package config loads the YAML configuration shared by the central and
// peripheral roles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Sensor reading limits in whole degrees Celsius. Readings outside the range
// are treated as sensor faults.
const (
	MinTemperature = -30
	MaxTemperature = 100
)

// MaxMotors is the number of motor enable pins on the board.
const MaxMotors = 8

// Button actions understood by the central.
const (
	ActionNavigate = "navigate"
	ActionUp       = "up"
	ActionDown     = "down"
	ActionConfirm  = "confirm"
	ActionQuery    = "query"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`
	// Strict stops a role's event loop on the first protocol error.
	Strict     bool             `yaml:"strict" default:"false"`
	Central    CentralConfig    `yaml:"central"`
	Peripheral PeripheralConfig `yaml:"peripheral"`
}

// CentralConfig holds settings for the button/display role.
type CentralConfig struct {
	// DeviceAddress selects the peripheral. Empty connects to the first
	// device advertising the MHS service.
	DeviceAddress string          `yaml:"device_address"`
	ScanTimeout   time.Duration   `yaml:"scan_timeout" default:"10s"`
	ReconnectMax  time.Duration   `yaml:"reconnect_max" default:"30s"`
	Display       string          `yaml:"display" default:"terminal"` // "terminal" or "log"
	Buttons       []ButtonBinding `yaml:"buttons"`
}

// ButtonBinding maps a keyboard key to one of the five board buttons.
type ButtonBinding struct {
	Key    string `yaml:"key"`
	Button int    `yaml:"button"`
	Action string `yaml:"action"`
}

// PeripheralConfig holds settings for the sensor/actuator role.
type PeripheralConfig struct {
	LocalName        string        `yaml:"local_name" default:"Marsh"`
	Sensor           string        `yaml:"sensor" default:"ds18b20"` // "ds18b20" or "fixed"
	SensorGlob       string        `yaml:"sensor_glob" default:"/sys/bus/w1/devices/28-*/temperature"`
	FixedTemperature int           `yaml:"fixed_temperature" default:"25"`
	SampleInterval   time.Duration `yaml:"sample_interval" default:"3s"`
	TempThreshold    int           `yaml:"temp_threshold" default:"0"`
	FanDelay         time.Duration `yaml:"fan_delay" default:"30s"`
	MotorCount       int           `yaml:"motor_count" default:"8"`
	PWMPeriod        time.Duration `yaml:"pwm_period" default:"20ms"`
	Music            string        `yaml:"music" default:"log"` // "media-keys" or "log"
	AutoReport       bool          `yaml:"auto_report" default:"false"`
	Pins             PinsConfig    `yaml:"pins"`
}

// PinsConfig names the GPIO lines driving the heater, fan and motors.
type PinsConfig struct {
	Driver string   `yaml:"driver" default:"log"` // "gpio" or "log"
	Heat   string   `yaml:"heat" default:"GPIO17"`
	Fan    string   `yaml:"fan" default:"GPIO27"`
	In1    string   `yaml:"in1" default:"GPIO23"`
	In2    string   `yaml:"in2" default:"GPIO24"`
	Enable []string `yaml:"enable"` // one per motor
}

// DefaultEnablePins are the motor enable lines on the reference board.
func DefaultEnablePins() []string {
	return []string{"GPIO5", "GPIO6", "GPIO12", "GPIO13", "GPIO16", "GPIO19", "GPIO20", "GPIO26"}
}

// DefaultButtons binds keys 1-5 to the five board buttons.
func DefaultButtons() []ButtonBinding {
	return []ButtonBinding{
		{Key: "1", Button: 1, Action: ActionNavigate},
		{Key: "2", Button: 2, Action: ActionUp},
		{Key: "3", Button: 3, Action: ActionDown},
		{Key: "4", Button: 4, Action: ActionConfirm},
		{Key: "5", Button: 5, Action: ActionQuery},
	}
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "marsh")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Central.Buttons = DefaultButtons()
	cfg.Peripheral.Pins.Enable = DefaultEnablePins()
	return cfg
}

// Load reads and parses a YAML config file. Missing fields keep their
// defaults; a buttons or pins.enable list in the file replaces the default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Central.validate(); err != nil {
		return err
	}
	return c.Peripheral.validate()
}

func (c *CentralConfig) validate() error {
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("central.scan_timeout must be > 0")
	}
	if c.ReconnectMax <= 0 {
		return fmt.Errorf("central.reconnect_max must be > 0")
	}
	switch c.Display {
	case "terminal", "log":
	default:
		return fmt.Errorf("central.display must be \"terminal\" or \"log\", got %q", c.Display)
	}

	if len(c.Buttons) == 0 {
		return fmt.Errorf("central.buttons must not be empty")
	}
	keys := make(map[string]bool)
	for i, b := range c.Buttons {
		if b.Key == "" {
			return fmt.Errorf("central.buttons[%d].key must not be empty", i)
		}
		if keys[b.Key] {
			return fmt.Errorf("central.buttons[%d].key %q is bound twice", i, b.Key)
		}
		keys[b.Key] = true
		if b.Button < 1 || b.Button > 5 {
			return fmt.Errorf("central.buttons[%d].button must be 1-5, got %d", i, b.Button)
		}
		switch b.Action {
		case ActionNavigate, ActionUp, ActionDown, ActionConfirm, ActionQuery:
		default:
			return fmt.Errorf("central.buttons[%d].action %q is not one of navigate, up, down, confirm, query", i, b.Action)
		}
	}
	return nil
}

func (p *PeripheralConfig) validate() error {
	if p.LocalName == "" {
		return fmt.Errorf("peripheral.local_name must not be empty")
	}
	switch p.Sensor {
	case "ds18b20":
		if p.SensorGlob == "" {
			return fmt.Errorf("peripheral.sensor_glob must not be empty for the ds18b20 sensor")
		}
	case "fixed":
	default:
		return fmt.Errorf("peripheral.sensor must be \"ds18b20\" or \"fixed\", got %q", p.Sensor)
	}
	if p.SampleInterval <= 0 {
		return fmt.Errorf("peripheral.sample_interval must be > 0")
	}
	if p.TempThreshold < MinTemperature || p.TempThreshold > MaxTemperature {
		return fmt.Errorf("peripheral.temp_threshold must be within [%d, %d], got %d", MinTemperature, MaxTemperature, p.TempThreshold)
	}
	if p.FanDelay < 0 {
		return fmt.Errorf("peripheral.fan_delay must not be negative")
	}
	if p.MotorCount < 1 || p.MotorCount > MaxMotors {
		return fmt.Errorf("peripheral.motor_count must be 1-%d, got %d", MaxMotors, p.MotorCount)
	}
	if p.PWMPeriod <= 0 {
		return fmt.Errorf("peripheral.pwm_period must be > 0")
	}
	switch p.Music {
	case "media-keys", "log":
	default:
		return fmt.Errorf("peripheral.music must be \"media-keys\" or \"log\", got %q", p.Music)
	}
	return p.Pins.validate(p.MotorCount)
}

func (p *PinsConfig) validate(motors int) error {
	switch p.Driver {
	case "log":
		return nil
	case "gpio":
	default:
		return fmt.Errorf("peripheral.pins.driver must be \"gpio\" or \"log\", got %q", p.Driver)
	}
	for name, pin := range map[string]string{"heat": p.Heat, "fan": p.Fan, "in1": p.In1, "in2": p.In2} {
		if pin == "" {
			return fmt.Errorf("peripheral.pins.%s must not be empty", name)
		}
	}
	if len(p.Enable) < motors {
		return fmt.Errorf("peripheral.pins.enable needs %d pins for motor_count, got %d", motors, len(p.Enable))
	}
	return nil
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

func parseLevel(s string) (logrus.Level, error) {
	switch s {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	}
	return logrus.PanicLevel, fmt.Errorf("log_level must be trace, debug, info, warn, or error, got %q", s)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
