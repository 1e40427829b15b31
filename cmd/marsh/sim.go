package main

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/central"
	"github.com/chaz8081/marsh/internal/display"
	"github.com/chaz8081/marsh/internal/peripheral"
)

var simTemperature int

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run central and peripheral together over an in-process link",
	Long: `Runs both roles in one process, linked without a radio. The peripheral
uses logging pins and a fixed temperature; button keys are read from stdin,
one per line (1-5 with the default bindings).`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func init() {
	simCmd.Flags().IntVar(&simTemperature, "temperature", 25, "temperature reported by the simulated sensor")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	cfg.Peripheral.Sensor = "fixed"
	cfg.Peripheral.FixedTemperature = simTemperature
	cfg.Peripheral.Pins.Driver = "log"
	printBanner("sim", cfg)
	log := logrus.NewEntry(logger)

	link := ble.NewLoopback()

	dev, err := buildDevices(cfg.Peripheral, log)
	if err != nil {
		return err
	}
	periph, err := peripheral.New(link.Peripheral(), link.PeripheralEvents(), dev, peripheralOptions(cfg), log)
	if err != nil {
		return err
	}

	source := buttonSource(cfg.Central.Buttons, true)
	go source.Start()
	defer source.Stop()

	disp, err := display.New(cfg.Central.Display, os.Stdout, log)
	if err != nil {
		return err
	}
	ctrl, err := central.New(link.Central(), link.CentralEvents(), pressesFrom(source.Events()), disp, central.Options{
		Strict:     cfg.Strict,
		MotorCount: cfg.Peripheral.MotorCount,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := periph.Tick(); err != nil {
		log.WithError(err).Warn("initial reading")
	}

	periphErr := make(chan error, 1)
	go func() {
		err := periph.Run(ctx)
		periphErr <- err
		cancel()
	}()

	if err := link.Connect(); err != nil {
		cancel()
		<-periphErr
		return err
	}

	err = ctrl.Run(ctx)
	cancel()
	return errors.Join(exitErr(err), exitErr(<-periphErr))
}
