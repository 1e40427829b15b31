// Command marsh runs either side of the Marsh BLE link: the central with
// its buttons and display, the peripheral with its sensor and actuators,
// or both over an in-process link for bench testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/marsh/internal/config"
)

var (
	configPath string
	logLevel   string
	strict     bool
)

var rootCmd = &cobra.Command{
	Use:   "marsh",
	Short: "Marsh BLE central and peripheral",
	Long: `Marsh drives a heater, a motor bank and a music transport over BLE.

The peripheral serves the MHS service and runs the thermostat. The central
connects to it, shows the readings and sends commands from five buttons.

Configuration is read from --config, else ~/.config/marsh/config.yaml if it
exists, else built-in defaults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.config/marsh/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "stop on the first protocol error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates the config, applies flag overrides, and builds
// the logger.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if strict {
		cfg.Strict = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		logrus.Debugf("config loaded from %s", defaultPath)
		return cfg, nil
	}

	logrus.Debug("no config file found, using defaults")
	return config.Default(), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitErr maps a clean shutdown to nil.
func exitErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printBanner displays the startup configuration summary.
func printBanner(role string, cfg *config.Config) {
	fmt.Printf("=== marsh %s ===\n", role)
	switch role {
	case "central", "sim":
		addr := cfg.Central.DeviceAddress
		if addr == "" {
			addr = "first MHS peripheral"
		}
		if role == "central" {
			fmt.Printf("  Device:   %s\n", addr)
		}
		fmt.Printf("  Display:  %s\n", cfg.Central.Display)
		keys := make([]string, len(cfg.Central.Buttons))
		for i, b := range cfg.Central.Buttons {
			keys[i] = b.Key + "=" + b.Action
		}
		fmt.Printf("  Buttons:  %s\n", strings.Join(keys, " "))
	}
	if role != "central" {
		p := cfg.Peripheral
		fmt.Printf("  Name:     %s\n", p.LocalName)
		fmt.Printf("  Sensor:   %s every %s\n", p.Sensor, p.SampleInterval)
		fmt.Printf("  Motors:   %d (%s pins)\n", p.MotorCount, p.Pins.Driver)
		fmt.Printf("  Music:    %s\n", p.Music)
	}
	fmt.Printf("  Log:      %s (strict: %t)\n", cfg.LogLevel, cfg.Strict)
	fmt.Println(strings.Repeat("=", len(role)+14))
}
