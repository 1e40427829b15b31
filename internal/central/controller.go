// Package central is the display/control role: it drives the MHS client
// from button presses and shows what the peripheral reports.
package central

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/display"
)

// Options tune the controller.
type Options struct {
	// Strict makes Run return the first protocol or display error.
	Strict     bool
	MotorCount int
}

// Press is one button press: the physical button and the action bound to it.
type Press struct {
	Button int
	Action string
}

// Controller owns the MHS client and the UI. It is driven by Run from a
// single goroutine.
type Controller struct {
	client  *ble.Client
	events  <-chan ble.StackEvent
	presses <-chan Press
	disp    display.Display
	ui      *UI
	opts    Options
	log     *logrus.Entry
}

// New registers MHS discovery on stack. events must deliver the stack's
// events; presses may be nil when there are no buttons.
func New(stack ble.GATTClient, events <-chan ble.StackEvent, presses <-chan Press, disp display.Display, opts Options, log *logrus.Entry) (*Controller, error) {
	if disp == nil {
		return nil, fmt.Errorf("central: %w: missing display", protocol.ErrNullArgument)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{
		events:  events,
		presses: presses,
		disp:    disp,
		ui:      NewUI(opts.MotorCount),
		opts:    opts,
		log:     log.WithField("component", "central"),
	}
	client, err := ble.NewClient(stack, c.handleClientEvent, log)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

// Client returns the MHS client.
func (c *Controller) Client() *ble.Client { return c.client }

// UI returns the screen state.
func (c *Controller) UI() *UI { return c.ui }

// Run processes stack events and button presses until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.log.WithField("motors", c.opts.MotorCount).Info("central running")
	if err := c.check(c.render()); err != nil {
		return err
	}

	presses := c.presses
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-c.events:
			if !ok {
				return errors.New("central: stack event channel closed")
			}
			if err := c.check(c.HandleStackEvent(evt)); err != nil {
				return err
			}
		case p, ok := <-presses:
			if !ok {
				c.log.Debug("button source closed")
				presses = nil
				continue
			}
			if err := c.check(c.Press(p)); err != nil {
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

// HandleStackEvent feeds one stack event to the client and redraws.
func (c *Controller) HandleStackEvent(evt ble.StackEvent) error {
	switch evt.Kind {
	case ble.EvtConnected:
		c.ui.SetStatus("connected, discovering")
	case ble.EvtDisconnected:
		c.ui.SetStatus("disconnected")
	}
	err := c.client.HandleStackEvent(evt)
	return errors.Join(err, c.render())
}

// Press applies one button press and sends any resulting command.
func (c *Controller) Press(p Press) error {
	c.log.WithFields(logrus.Fields{
		"button": p.Button,
		"action": p.Action,
		"screen": c.ui.Screen(),
	}).Debug("button")

	var err error
	if cmd, ok := c.ui.Press(p.Action); ok {
		err = c.send(cmd)
	}
	return errors.Join(err, c.render())
}

func (c *Controller) send(cmd protocol.Command) error {
	err := c.client.SendCommand(cmd)
	c.ui.Sent(cmd, err)
	if err != nil {
		return fmt.Errorf("central: send %s: %w", cmd, err)
	}
	c.log.WithField("cmd", cmd).Debug("sent")
	return nil
}

func (c *Controller) handleClientEvent(evt ble.ClientEvent) error {
	switch evt.Type {
	case ble.ClientDiscoveryComplete:
		c.ui.SetStatus("connected")
		return c.queryAll()
	case ble.ClientNotification:
		c.log.WithFields(logrus.Fields{
			"code":  evt.Event.Code,
			"value": evt.Event.Value,
		}).Debug("event")
		c.ui.Apply(evt.Event)
	}
	return nil
}

// queryAll asks for every reportable value so the screens start populated.
func (c *Controller) queryAll() error {
	return errors.Join(
		c.send(protocol.GetTemperature()),
		c.send(protocol.GetTempThreshold()),
		c.send(protocol.GetMotorSpeed()),
	)
}

func (c *Controller) render() error {
	if err := c.disp.Show(c.ui.Render()); err != nil {
		return fmt.Errorf("central: display: %w", err)
	}
	return nil
}
