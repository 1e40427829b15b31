package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Heater switches the heating element and starts its fan after a delay.
// It is safe for concurrent use; the fan start runs on its own timer.
type Heater struct {
	heat     Pin
	fan      Pin
	fanDelay time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	on       bool
	fanOn    bool
	fanTimer *time.Timer
}

// NewHeater returns a heater that is off.
func NewHeater(heat, fan Pin, fanDelay time.Duration, log *logrus.Entry) *Heater {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Heater{
		heat:     heat,
		fan:      fan,
		fanDelay: fanDelay,
		log:      log.WithField("component", "heater"),
	}
}

// On powers the heating element and schedules the fan. Calling On while
// already on does nothing.
func (h *Heater) On() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.on {
		return nil
	}
	if err := h.heat.Set(true); err != nil {
		return fmt.Errorf("heater on: %w", err)
	}
	h.on = true
	h.log.WithField("fan_delay", h.fanDelay).Info("heater on")

	var timer *time.Timer
	timer = time.AfterFunc(h.fanDelay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		// A later Off/On pair replaces the timer; only the current one may
		// start the fan.
		if !h.on || h.fanTimer != timer {
			return
		}
		if err := h.fan.Set(true); err != nil {
			h.log.WithError(err).Error("fan start failed")
			return
		}
		h.fanOn = true
		h.log.Debug("fan on")
	})
	h.fanTimer = timer
	return nil
}

// Off stops the heating element and the fan, cancelling a pending fan start.
func (h *Heater) Off() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fanTimer != nil {
		h.fanTimer.Stop()
		h.fanTimer = nil
	}
	wasOn := h.on
	h.on = false
	h.fanOn = false

	err := errors.Join(h.heat.Set(false), h.fan.Set(false))
	if err != nil {
		return fmt.Errorf("heater off: %w", err)
	}
	if wasOn {
		h.log.Info("heater off")
	}
	return nil
}

// IsOn reports whether the heating element is powered.
func (h *Heater) IsOn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.on
}

// FanOn reports whether the fan has started.
func (h *Heater) FanOn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fanOn
}
