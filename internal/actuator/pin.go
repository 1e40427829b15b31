// Package actuator drives the peripheral's outputs: the heater and its fan,
// and the motor H-bridge. Outputs are digital pins behind the Pin
// interface so that the drivers run unchanged against real GPIO or a
// logging stand-in.
package actuator

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pin is a digital output.
type Pin interface {
	Name() string
	Set(high bool) error
}

// LogPin is an in-memory pin that logs every level change.
type LogPin struct {
	name string
	log  *logrus.Entry

	mu      sync.Mutex
	high    bool
	toggles int
}

// NewLogPin returns a low pin.
func NewLogPin(name string, log *logrus.Entry) *LogPin {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogPin{name: name, log: log.WithField("pin", name)}
}

func (p *LogPin) Name() string { return p.name }

func (p *LogPin) Set(high bool) error {
	p.mu.Lock()
	changed := p.high != high
	p.high = high
	if changed {
		p.toggles++
	}
	p.mu.Unlock()
	if changed {
		p.log.WithField("high", high).Trace("pin")
	}
	return nil
}

// High reports the current level.
func (p *LogPin) High() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}

// Toggles counts level changes since creation.
func (p *LogPin) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// NewPin returns the pin called name for driver, "gpio" or "log".
func NewPin(driver, name string, log *logrus.Entry) (Pin, error) {
	switch driver {
	case "gpio":
		p, err := OpenGPIO(name)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "log":
		return NewLogPin(name, log), nil
	}
	return nil, fmt.Errorf("actuator: unknown pin driver %q", driver)
}

// GPIOPin is a host GPIO line driven through periph.io.
type GPIOPin struct {
	pin gpio.PinIO
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// OpenGPIO initialises the host drivers once and looks up name in the GPIO
// registry (for example "GPIO17"). The line starts low.
func OpenGPIO(name string) (*GPIOPin, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("actuator: init host drivers: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("actuator: no GPIO named %q", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("actuator: configure %s as output: %w", name, err)
	}
	return &GPIOPin{pin: pin}, nil
}

func (p *GPIOPin) Name() string { return p.pin.Name() }

func (p *GPIOPin) Set(high bool) error {
	if err := p.pin.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("actuator: set %s: %w", p.pin.Name(), err)
	}
	return nil
}
