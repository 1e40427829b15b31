//go:build linux || windows

package ble

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// tinygoConn is the connection handle reported by the peripheral. tinygo
// serves a single central, so one synthetic handle is enough.
const tinygoConn ConnHandle = 1

// TinyGoPeripheral implements GATTServer with tinygo-org/bluetooth.
//
// tinygo does not surface CCCD writes to the application. On connect the
// peripheral therefore reports a notification-enable write on every notify
// characteristic's CCCD, and Notify relies on the stack to drop values for
// unsubscribed clients.
type TinyGoPeripheral struct {
	adapter   *bluetooth.Adapter
	localName string
	log       *logrus.Entry
	events    chan StackEvent

	mu         sync.Mutex
	nextHandle AttrHandle
	services   []bluetooth.UUID
	notifiers  map[AttrHandle]*bluetooth.Characteristic
	cccds      []AttrHandle
	connected  bool
}

// NewTinyGoPeripheral wraps the default adapter. localName is advertised
// alongside the registered service UUIDs.
func NewTinyGoPeripheral(localName string, log *logrus.Entry) *TinyGoPeripheral {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TinyGoPeripheral{
		adapter:    bluetooth.DefaultAdapter,
		localName:  localName,
		log:        log.WithField("component", "tinygo"),
		events:     make(chan StackEvent, tinygoEventBuffer),
		nextHandle: 1,
		notifiers:  make(map[AttrHandle]*bluetooth.Characteristic),
	}
}

var _ GATTServer = (*TinyGoPeripheral)(nil)

// Events delivers the peripheral's stack events.
func (p *TinyGoPeripheral) Events() <-chan StackEvent { return p.events }

// Enable powers on the adapter and maps link changes to stack events.
func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.mu.Lock()
		changed := p.connected != connected
		p.connected = connected
		cccds := append([]AttrHandle(nil), p.cccds...)
		p.mu.Unlock()
		if !changed {
			return
		}

		if !connected {
			p.log.WithField("address", device.Address.String()).Info("central disconnected")
			p.events <- StackEvent{Kind: EvtDisconnected, Conn: tinygoConn}
			return
		}
		p.log.WithField("address", device.Address.String()).Info("central connected")
		p.events <- StackEvent{Kind: EvtConnected, Conn: tinygoConn}
		enable := []byte{byte(protocol.CCCDNotificationsEnabled), byte(protocol.CCCDNotificationsEnabled >> 8)}
		for _, h := range cccds {
			p.events <- StackEvent{Kind: EvtGATTSWrite, Conn: tinygoConn, Handle: h, Data: enable}
		}
	})
	return nil
}

func (p *TinyGoPeripheral) AddService(def ServiceDef) ([]CharHandles, error) {
	svcUUID, err := bluetooth.ParseUUID(def.UUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	handles := make([]CharHandles, len(def.Characteristics))
	configs := make([]bluetooth.CharacteristicConfig, len(def.Characteristics))
	notifiers := make(map[AttrHandle]*bluetooth.Characteristic)
	var cccds []AttrHandle

	for i, ch := range def.Characteristics {
		uuid, err := bluetooth.ParseUUID(ch.UUID)
		if err != nil {
			return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
		}
		value := p.nextHandle
		p.nextHandle++
		handles[i].Value = value

		cfg := bluetooth.CharacteristicConfig{
			UUID:  uuid,
			Value: make([]byte, 0, ch.MaxLen),
		}
		if ch.Props&PropRead != 0 {
			cfg.Flags |= bluetooth.CharacteristicReadPermission
		}
		if ch.Props&PropWrite != 0 {
			cfg.Flags |= bluetooth.CharacteristicWritePermission
			cfg.WriteEvent = func(_ bluetooth.Connection, offset int, data []byte) {
				if offset != 0 {
					p.log.WithField("offset", offset).Warn("dropping offset write")
					return
				}
				p.events <- StackEvent{
					Kind:   EvtGATTSWrite,
					Conn:   tinygoConn,
					Handle: value,
					Data:   append([]byte(nil), data...),
				}
			}
		}
		if ch.Props&PropNotify != 0 {
			cfg.Flags |= bluetooth.CharacteristicNotifyPermission
			handles[i].CCCD = p.nextHandle
			p.nextHandle++
			cfg.Handle = &bluetooth.Characteristic{}
			notifiers[value] = cfg.Handle
			cccds = append(cccds, handles[i].CCCD)
		}
		configs[i] = cfg
	}

	if err := p.adapter.AddService(&bluetooth.Service{UUID: svcUUID, Characteristics: configs}); err != nil {
		return nil, fmt.Errorf("ble: add service %s: %w", def.UUID, err)
	}
	for h, c := range notifiers {
		p.notifiers[h] = c
	}
	p.cccds = append(p.cccds, cccds...)
	p.services = append(p.services, svcUUID)
	return handles, nil
}

// Advertise starts advertising the local name and every registered service.
func (p *TinyGoPeripheral) Advertise() error {
	p.mu.Lock()
	uuids := append([]bluetooth.UUID(nil), p.services...)
	p.mu.Unlock()

	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.localName,
		ServiceUUIDs: uuids,
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	p.log.WithField("name", p.localName).Info("advertising")
	return nil
}

func (p *TinyGoPeripheral) Notify(conn ConnHandle, handle AttrHandle, data []byte) error {
	p.mu.Lock()
	char, ok := p.notifiers[handle]
	connected := p.connected
	p.mu.Unlock()
	if !connected || conn != tinygoConn {
		return fmt.Errorf("ble: notify: %w: not connected", protocol.ErrInvalidState)
	}
	if !ok {
		return fmt.Errorf("ble: notify: %w: handle %d is not notifiable", protocol.ErrInvalidParameter, handle)
	}
	if _, err := char.Write(data); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}
