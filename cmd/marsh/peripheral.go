package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/marsh/internal/actuator"
	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/config"
	"github.com/chaz8081/marsh/internal/music"
	"github.com/chaz8081/marsh/internal/peripheral"
	"github.com/chaz8081/marsh/internal/sensor"
)

var peripheralCmd = &cobra.Command{
	Use:   "peripheral",
	Short: "Serve MHS and run the heater, motors and music transport",
	Long: `Registers the MHS service, advertises it under peripheral.local_name and
carries out the commands a central writes to the control point.

The thermostat samples the temperature sensor every sample_interval and
switches the heater when the reading crosses temp_threshold.`,
	Args: cobra.NoArgs,
	RunE: runPeripheral,
}

func init() {
	rootCmd.AddCommand(peripheralCmd)
}

func runPeripheral(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	printBanner("peripheral", cfg)
	log := logrus.NewEntry(logger)

	dev, err := buildDevices(cfg.Peripheral, log)
	if err != nil {
		return err
	}

	stack := ble.NewTinyGoPeripheral(cfg.Peripheral.LocalName, log)
	if err := stack.Enable(); err != nil {
		return err
	}
	ctrl, err := peripheral.New(stack, stack.Events(), dev, peripheralOptions(cfg), log)
	if err != nil {
		return err
	}
	if err := stack.Advertise(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return exitErr(ctrl.Run(ctx))
}

func peripheralOptions(cfg *config.Config) peripheral.Options {
	return peripheral.Options{
		Strict:         cfg.Strict,
		SampleInterval: cfg.Peripheral.SampleInterval,
		Threshold:      int16(cfg.Peripheral.TempThreshold),
		AutoReport:     cfg.Peripheral.AutoReport,
	}
}

// buildDevices opens the sensor, pins and music player named by cfg.
func buildDevices(cfg config.PeripheralConfig, log *logrus.Entry) (peripheral.Devices, error) {
	var dev peripheral.Devices

	switch cfg.Sensor {
	case "ds18b20":
		dev.Sensor = sensor.NewDS18B20(cfg.SensorGlob)
	default:
		dev.Sensor = sensor.NewFixed(cfg.FixedTemperature)
	}

	pins := cfg.Pins
	var openErrs []error
	open := func(name string) actuator.Pin {
		p, err := actuator.NewPin(pins.Driver, name, log)
		if err != nil {
			openErrs = append(openErrs, fmt.Errorf("pin %s: %w", name, err))
			return nil
		}
		return p
	}

	heat, fan := open(pins.Heat), open(pins.Fan)
	in1, in2 := open(pins.In1), open(pins.In2)
	enable := make([]actuator.Pin, cfg.MotorCount)
	for i := range enable {
		name := fmt.Sprintf("EN%d", i)
		if i < len(pins.Enable) {
			name = pins.Enable[i]
		}
		enable[i] = open(name)
	}
	if err := errors.Join(openErrs...); err != nil {
		return dev, err
	}

	dev.Heater = actuator.NewHeater(heat, fan, cfg.FanDelay, log)
	dev.Motor = actuator.NewMotor(enable, in1, in2, cfg.PWMPeriod, log)

	player, err := music.New(cfg.Music, log)
	if err != nil {
		return dev, err
	}
	dev.Music = player
	return dev, nil
}
