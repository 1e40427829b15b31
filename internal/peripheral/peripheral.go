// Package peripheral is the sensor/actuator role: it serves MHS, carries out
// received commands on the heater, motors and music transport, and runs the
// thermostat.
package peripheral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/config"
	"github.com/chaz8081/marsh/internal/sensor"
)

// Heater is the heating element with its fan.
type Heater interface {
	On() error
	Off() error
	IsOn() bool
}

// Motor is the motor bank.
type Motor interface {
	Count() int
	On(index int, dir protocol.Direction) error
	SetDuty(duty uint8) error
	Off() error
	Duty() uint8
}

// MusicPlayer performs music transport commands.
type MusicPlayer interface {
	Do(cmd protocol.MusicCommand) error
}

// Devices are the peripheral's inputs and outputs.
type Devices struct {
	Sensor sensor.Sensor
	Heater Heater
	Motor  Motor
	Music  MusicPlayer
}

// Options tune the controller.
type Options struct {
	// Strict makes Run return the first protocol or device error.
	Strict         bool
	SampleInterval time.Duration
	Threshold      int16
	// AutoReport notifies CURRENT_TEMPERATURE after every accepted reading.
	AutoReport bool
}

// Controller owns the MHS server and the peripheral's state. It is driven
// by Run from a single goroutine.
type Controller struct {
	server *ble.Server
	events <-chan ble.StackEvent
	dev    Devices
	opts   Options
	log    *logrus.Entry

	threshold   int16
	temperature int16
}

// New registers the MHS service on stack. events must deliver the stack's
// events.
func New(stack ble.GATTServer, events <-chan ble.StackEvent, dev Devices, opts Options, log *logrus.Entry) (*Controller, error) {
	if dev.Sensor == nil || dev.Heater == nil || dev.Motor == nil || dev.Music == nil {
		return nil, fmt.Errorf("peripheral: %w: missing device", protocol.ErrNullArgument)
	}
	if opts.SampleInterval <= 0 {
		return nil, fmt.Errorf("peripheral: %w: sample interval %s", protocol.ErrInvalidParameter, opts.SampleInterval)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{
		events:    events,
		dev:       dev,
		opts:      opts,
		log:       log.WithField("component", "peripheral"),
		threshold: opts.Threshold,
	}
	server, err := ble.NewServer(stack, c.handleServerEvent, log)
	if err != nil {
		return nil, err
	}
	c.server = server
	return c, nil
}

// Server returns the MHS server.
func (c *Controller) Server() *ble.Server { return c.server }

// Threshold returns the heater threshold in degrees Celsius.
func (c *Controller) Threshold() int16 { return c.threshold }

// Temperature returns the last accepted reading.
func (c *Controller) Temperature() int16 { return c.temperature }

// Run processes stack events and thermostat ticks until ctx is done. On
// return the heater and motors are switched off.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.SampleInterval)
	defer ticker.Stop()
	defer c.shutdown()

	c.log.WithFields(logrus.Fields{
		"interval":  c.opts.SampleInterval,
		"threshold": c.threshold,
	}).Info("peripheral running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-c.events:
			if !ok {
				return errors.New("peripheral: stack event channel closed")
			}
			if err := c.check(c.HandleStackEvent(evt)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.check(c.Tick()); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) check(err error) error {
	if err == nil {
		return nil
	}
	if c.opts.Strict {
		return err
	}
	c.log.WithError(err).Warn("event dropped")
	return nil
}

func (c *Controller) shutdown() {
	if err := errors.Join(c.dev.Heater.Off(), c.dev.Motor.Off()); err != nil {
		c.log.WithError(err).Error("shutdown")
	}
}

// HandleStackEvent feeds one stack event to the MHS server.
func (c *Controller) HandleStackEvent(evt ble.StackEvent) error {
	return c.server.HandleStackEvent(evt)
}

func (c *Controller) handleServerEvent(evt ble.ServerEvent) error {
	switch evt.Type {
	case ble.ServerCommand:
		return c.dispatch(evt.Command)
	case ble.ServerNotificationsEnabled, ble.ServerNotificationsDisabled:
		c.log.WithField("event", evt.Type).Debug("subscription changed")
	}
	return nil
}

func (c *Controller) dispatch(cmd protocol.Command) error {
	c.log.WithField("command", cmd).Debug("dispatch")
	switch cmd.Opcode {
	case protocol.OpGetTemperature:
		return c.server.Notify(protocol.EventCurrentTemperature, protocol.Int16Value(c.temperature))
	case protocol.OpGetTempThreshold:
		return c.server.Notify(protocol.EventTempThreshold, protocol.Int16Value(c.threshold))
	case protocol.OpGetMotorSpeed:
		return c.server.Notify(protocol.EventMotorSpeed, protocol.Uint16Value(uint16(c.dev.Motor.Duty())))
	case protocol.OpSetTempThreshold:
		c.threshold = cmd.Temperature()
		c.log.WithField("threshold", c.threshold).Info("threshold set")
		return nil
	case protocol.OpSetMotorControl:
		index, dir := cmd.MotorControl()
		if int(index) >= c.dev.Motor.Count() {
			return fmt.Errorf("peripheral: %w: motor %d, have %d", protocol.ErrInvalidParameter, index, c.dev.Motor.Count())
		}
		return c.dev.Motor.On(int(index), dir)
	case protocol.OpSetMotorSpeed:
		return c.dev.Motor.SetDuty(cmd.DutyCycle())
	case protocol.OpSetMotorOff:
		return c.dev.Motor.Off()
	case protocol.OpSetMusicControl:
		m := cmd.Music()
		if !m.Valid() {
			return fmt.Errorf("peripheral: %w: music command %d", protocol.ErrInvalidParameter, m)
		}
		return c.dev.Music.Do(m)
	}
	return fmt.Errorf("peripheral: %w: opcode %s", protocol.ErrInvalidParameter, cmd.Opcode)
}

// Tick takes one thermostat sample. A failed read, or a reading outside the
// sane range (including the sensor's error value), leaves the cached
// temperature and the heater untouched.
func (c *Controller) Tick() error {
	reading, err := c.dev.Sensor.ReadTemperature()
	if err != nil {
		c.log.WithError(err).Warn("sensor read failed")
		return nil
	}
	if reading < config.MinTemperature || reading > config.MaxTemperature {
		c.log.WithField("reading", reading).Warn("reading rejected")
		return nil
	}
	c.temperature = int16(reading)

	if c.temperature < c.threshold {
		if !c.dev.Heater.IsOn() {
			if err := c.dev.Heater.On(); err != nil {
				return err
			}
		}
	} else if c.dev.Heater.IsOn() {
		if err := c.dev.Heater.Off(); err != nil {
			return err
		}
	}

	if c.opts.AutoReport && c.server.NotificationsEnabled() {
		return c.server.Notify(protocol.EventCurrentTemperature, protocol.Int16Value(c.temperature))
	}
	return nil
}
