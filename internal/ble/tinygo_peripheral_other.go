//go:build !linux && !windows

package ble

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// errPeripheralUnsupported is returned by every TinyGoPeripheral operation
// on platforms where tinygo has no GATT server.
var errPeripheralUnsupported = fmt.Errorf("ble: peripheral role is not supported on this platform: %w", protocol.ErrInvalidState)

// TinyGoPeripheral is unavailable here: tinygo only serves GATT on Linux
// and Windows.
type TinyGoPeripheral struct {
	events chan StackEvent
}

func NewTinyGoPeripheral(localName string, log *logrus.Entry) *TinyGoPeripheral {
	return &TinyGoPeripheral{events: make(chan StackEvent, tinygoEventBuffer)}
}

var _ GATTServer = (*TinyGoPeripheral)(nil)

func (p *TinyGoPeripheral) Events() <-chan StackEvent { return p.events }

func (p *TinyGoPeripheral) Enable() error { return errPeripheralUnsupported }

func (p *TinyGoPeripheral) AddService(def ServiceDef) ([]CharHandles, error) {
	return nil, errPeripheralUnsupported
}

func (p *TinyGoPeripheral) Advertise() error { return errPeripheralUnsupported }

func (p *TinyGoPeripheral) Notify(conn ConnHandle, handle AttrHandle, data []byte) error {
	return errPeripheralUnsupported
}
