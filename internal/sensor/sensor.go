// Package sensor reads the peripheral's temperature probe.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrorValue is reported in place of a reading when the probe fails. It
// lies outside every sane temperature range.
const ErrorValue = 0xFFFF

// Sensor returns the temperature in whole degrees Celsius. On failure it
// returns ErrorValue together with the error.
type Sensor interface {
	ReadTemperature() (int, error)
}

// DS18B20 reads a one-wire DS18B20 probe through the Linux w1 sysfs
// interface. Both the w1_therm "temperature" attribute (millidegrees) and
// the legacy "w1_slave" dump (CRC line followed by "t=<millidegrees>") are
// understood.
type DS18B20 struct {
	glob string
}

// NewDS18B20 reads the first file matching glob, for example
// /sys/bus/w1/devices/28-*/temperature.
func NewDS18B20(glob string) *DS18B20 {
	return &DS18B20{glob: glob}
}

func (d *DS18B20) ReadTemperature() (int, error) {
	matches, err := filepath.Glob(d.glob)
	if err != nil {
		return ErrorValue, fmt.Errorf("sensor: bad glob %q: %w", d.glob, err)
	}
	if len(matches) == 0 {
		return ErrorValue, fmt.Errorf("sensor: no probe matches %q", d.glob)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return ErrorValue, fmt.Errorf("sensor: read %s: %w", matches[0], err)
	}
	milli, err := parseMillidegrees(string(data))
	if err != nil {
		return ErrorValue, fmt.Errorf("sensor: %s: %w", matches[0], err)
	}
	return int(math.Round(float64(milli) / 1000)), nil
}

func parseMillidegrees(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "t=") {
		lines := strings.Split(s, "\n")
		if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
			return 0, errors.New("CRC check failed")
		}
		_, s, _ = strings.Cut(s, "t=")
		s = strings.TrimSpace(s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse reading %q: %w", s, err)
	}
	return v, nil
}

// Fixed is a sensor that reports a settable value.
type Fixed struct {
	mu    sync.Mutex
	value int
	err   error
}

// NewFixed returns a sensor reporting celsius.
func NewFixed(celsius int) *Fixed {
	return &Fixed{value: celsius}
}

// Set changes the reported value and clears any injected failure.
func (f *Fixed) Set(celsius int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = celsius
	f.err = nil
}

// Fail makes subsequent reads fail with err.
func (f *Fixed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fixed) ReadTemperature() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ErrorValue, f.err
	}
	return f.value, nil
}
