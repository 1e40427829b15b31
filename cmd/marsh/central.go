package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/buttons"
	"github.com/chaz8081/marsh/internal/central"
	"github.com/chaz8081/marsh/internal/config"
	"github.com/chaz8081/marsh/internal/display"
)

var centralStdin bool

var centralCmd = &cobra.Command{
	Use:   "central [device-address]",
	Short: "Connect to a peripheral and control it from the buttons",
	Long: `Scans for the MHS peripheral (or connects to the given address), enables
event notifications and drives the five-screen UI.

Buttons come from the global keyboard hook, or from stdin with --stdin
(one key name per line). The link is re-established when it drops.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCentral,
}

func init() {
	centralCmd.Flags().BoolVar(&centralStdin, "stdin", false, "read button keys from stdin instead of the keyboard hook")
	rootCmd.AddCommand(centralCmd)
}

func runCentral(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Central.DeviceAddress = args[0]
	}
	printBanner("central", cfg)
	log := logrus.NewEntry(logger)

	stack := ble.NewTinyGoCentral(log)
	if err := stack.Enable(); err != nil {
		return err
	}

	source := buttonSource(cfg.Central.Buttons, centralStdin)
	go source.Start()

	disp, err := display.New(cfg.Central.Display, os.Stdout, log)
	if err != nil {
		return err
	}
	ctrl, err := central.New(stack, stack.Events(), pressesFrom(source.Events()), disp, central.Options{
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

	linkErr := make(chan error, 1)
	go func() {
		err := stack.Maintain(ctx, cfg.Central.DeviceAddress, cfg.Central.ScanTimeout, cfg.Central.ReconnectMax)
		linkErr <- err
		cancel()
	}()

	err = ctrl.Run(ctx)
	cancel()
	if lerr := <-linkErr; exitErr(lerr) != nil {
		log.WithError(lerr).Error("link maintenance stopped")
	}
	if _, ok := source.(*buttons.LineReader); ok {
		source.Stop()
	}
	// The keyboard hook is left running; its C cleanup can crash and the
	// OS reclaims it on exit.
	return exitErr(err)
}

func buttonSource(bindings []config.ButtonBinding, stdin bool) buttons.Source {
	bb := make([]buttons.Binding, len(bindings))
	for i, b := range bindings {
		bb[i] = buttons.Binding{Key: b.Key, Button: b.Button, Action: b.Action}
	}
	if stdin {
		return buttons.NewLineReader(os.Stdin, bb)
	}
	return buttons.NewListener(bb)
}

// pressesFrom feeds button events to the controller. The returned channel
// closes when src does.
func pressesFrom(src <-chan buttons.Event) <-chan central.Press {
	out := make(chan central.Press)
	go func() {
		defer close(out)
		for e := range src {
			out <- central.Press{Button: e.Button, Action: e.Action}
		}
	}()
	return out
}
