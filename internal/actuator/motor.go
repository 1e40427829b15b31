package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// MaxDuty is the full-on duty cycle in percent.
const MaxDuty = 100

// Motor drives up to eight motors sharing one H-bridge direction pair. One
// motor runs at a time: its enable pin carries a software PWM signal at the
// configured duty cycle while the others are held low.
type Motor struct {
	enable []Pin
	in1    Pin
	in2    Pin
	period time.Duration
	log    *logrus.Entry

	mu      sync.Mutex
	running bool
	index   int
	dir     protocol.Direction
	duty    uint8
	stop    chan struct{}
	done    chan struct{}
}

// NewMotor returns a stopped motor driver at full duty.
func NewMotor(enable []Pin, in1, in2 Pin, period time.Duration, log *logrus.Entry) *Motor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Motor{
		enable: enable,
		in1:    in1,
		in2:    in2,
		period: period,
		log:    log.WithField("component", "motor"),
		duty:   MaxDuty,
	}
}

// Count returns the number of motors.
func (m *Motor) Count() int { return len(m.enable) }

// On starts motor index in direction dir at the current duty cycle. A
// running motor is stopped first.
func (m *Motor) On(index int, dir protocol.Direction) error {
	if index < 0 || index >= len(m.enable) {
		return fmt.Errorf("motor on: %w: index %d, have %d motors", protocol.ErrInvalidParameter, index, len(m.enable))
	}
	if dir != protocol.Clockwise && dir != protocol.Anticlockwise {
		return fmt.Errorf("motor on: %w: direction %d", protocol.ErrInvalidParameter, dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopPWMLocked()
	if err := m.allLowLocked(); err != nil {
		return fmt.Errorf("motor on: %w", err)
	}
	cw := dir == protocol.Clockwise
	if err := errors.Join(m.in1.Set(cw), m.in2.Set(!cw)); err != nil {
		return fmt.Errorf("motor on: set direction: %w", err)
	}
	m.running = true
	m.index = index
	m.dir = dir
	m.log.WithFields(logrus.Fields{"index": index, "direction": dir, "duty": m.duty}).Info("motor on")
	return m.startPWMLocked()
}

// SetDuty changes the duty cycle in percent. A running motor picks it up
// immediately.
func (m *Motor) SetDuty(duty uint8) error {
	if duty > MaxDuty {
		return fmt.Errorf("motor duty: %w: %d%%", protocol.ErrInvalidParameter, duty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty = duty
	m.log.WithField("duty", duty).Debug("duty cycle set")
	if !m.running {
		return nil
	}
	m.stopPWMLocked()
	return m.startPWMLocked()
}

// Off stops every motor.
func (m *Motor) Off() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopPWMLocked()
	wasRunning := m.running
	m.running = false
	if err := m.allLowLocked(); err != nil {
		return fmt.Errorf("motor off: %w", err)
	}
	if wasRunning {
		m.log.Info("motor off")
	}
	return nil
}

// Duty returns the duty cycle in percent.
func (m *Motor) Duty() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty
}

// Running reports the active motor and direction, if any.
func (m *Motor) Running() (running bool, index int, dir protocol.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running, m.index, m.dir
}

func (m *Motor) allLowLocked() error {
	var errs []error
	for _, p := range m.enable {
		errs = append(errs, p.Set(false))
	}
	return errors.Join(errs...)
}

func (m *Motor) startPWMLocked() error {
	pin := m.enable[m.index]
	switch m.duty {
	case 0:
		return pin.Set(false)
	case MaxDuty:
		return pin.Set(true)
	}
	high := m.period * time.Duration(m.duty) / MaxDuty
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go pwm(pin, high, m.period-high, m.stop, m.done, m.log)
	return nil
}

func (m *Motor) stopPWMLocked() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
}

func pwm(pin Pin, high, low time.Duration, stop <-chan struct{}, done chan<- struct{}, log *logrus.Entry) {
	defer close(done)
	defer func() { _ = pin.Set(false) }()

	t := time.NewTimer(0)
	defer t.Stop()
	<-t.C
	for {
		if err := pin.Set(true); err != nil {
			log.WithError(err).Error("pwm stopped")
			return
		}
		t.Reset(high)
		select {
		case <-stop:
			return
		case <-t.C:
		}

		if err := pin.Set(false); err != nil {
			log.WithError(err).Error("pwm stopped")
			return
		}
		t.Reset(low)
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}
