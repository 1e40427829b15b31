package ble

import (
	"fmt"
	"sync"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// loopbackConn is the connection handle used by the loopback link.
const loopbackConn ConnHandle = 0

// loopbackEventBuffer bounds each side's event channel.
const loopbackEventBuffer = 256

// Loopback links one central and one peripheral in memory. Each side
// receives its StackEvents on its own channel, so a central and a
// peripheral event loop can run in separate goroutines, or a test can pump
// both channels by hand.
type Loopback struct {
	mu sync.Mutex

	centralEvents    chan StackEvent
	peripheralEvents chan StackEvent

	connected  bool
	nextHandle AttrHandle
	services   []loopbackService
	discover   map[string]bool
	subscribed map[AttrHandle]bool // keyed by value handle
	values     map[AttrHandle][]byte
}

type loopbackService struct {
	def     ServiceDef
	handles []CharHandles
}

// NewLoopback returns an unconnected link.
func NewLoopback() *Loopback {
	return &Loopback{
		centralEvents:    make(chan StackEvent, loopbackEventBuffer),
		peripheralEvents: make(chan StackEvent, loopbackEventBuffer),
		nextHandle:       1,
		discover:         make(map[string]bool),
		subscribed:       make(map[AttrHandle]bool),
		values:           make(map[AttrHandle][]byte),
	}
}

// Central returns the central-role surface of the link.
func (l *Loopback) Central() *LoopbackCentral { return &LoopbackCentral{l: l} }

// Peripheral returns the peripheral-role surface of the link.
func (l *Loopback) Peripheral() *LoopbackPeripheral { return &LoopbackPeripheral{l: l} }

// CentralEvents delivers the central's stack events.
func (l *Loopback) CentralEvents() <-chan StackEvent { return l.centralEvents }

// PeripheralEvents delivers the peripheral's stack events.
func (l *Loopback) PeripheralEvents() <-chan StackEvent { return l.peripheralEvents }

// Connect establishes the link and runs discovery for every UUID the
// central registered.
func (l *Loopback) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return fmt.Errorf("loopback: connect: %w: already connected", protocol.ErrInvalidState)
	}
	l.connected = true
	l.centralEvents <- StackEvent{Kind: EvtConnected, Conn: loopbackConn}
	l.peripheralEvents <- StackEvent{Kind: EvtConnected, Conn: loopbackConn}

	for _, svc := range l.services {
		if !l.discover[svc.def.UUID] {
			continue
		}
		found := &DiscoveredService{UUID: svc.def.UUID}
		for i, ch := range svc.def.Characteristics {
			found.Characteristics = append(found.Characteristics, DiscoveredCharacteristic{
				UUID:  ch.UUID,
				Value: svc.handles[i].Value,
				CCCD:  svc.handles[i].CCCD,
				Props: ch.Props,
			})
		}
		l.centralEvents <- StackEvent{Kind: EvtDiscoveryComplete, Conn: loopbackConn, Service: found}
	}
	return nil
}

// Disconnect drops the link and forgets subscriptions.
func (l *Loopback) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return
	}
	l.connected = false
	l.subscribed = make(map[AttrHandle]bool)
	l.centralEvents <- StackEvent{Kind: EvtDisconnected, Conn: loopbackConn}
	l.peripheralEvents <- StackEvent{Kind: EvtDisconnected, Conn: loopbackConn}
}

// cccdOwner returns the value handle whose CCCD is h.
func (l *Loopback) cccdOwner(h AttrHandle) (AttrHandle, bool) {
	for _, svc := range l.services {
		for _, ch := range svc.handles {
			if ch.CCCD != InvalidHandle && ch.CCCD == h {
				return ch.Value, true
			}
		}
	}
	return InvalidHandle, false
}

// LoopbackCentral implements GATTClient over a Loopback.
type LoopbackCentral struct{ l *Loopback }

var _ GATTClient = (*LoopbackCentral)(nil)

func (c *LoopbackCentral) RegisterDiscovery(serviceUUID string) error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	c.l.discover[serviceUUID] = true
	return nil
}

// Write delivers the value to the peripheral and, for write requests, queues
// the write response for the central.
func (c *LoopbackCentral) Write(conn ConnHandle, p WriteParams) error {
	l := c.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkSubmit(conn); err != nil {
		return err
	}
	data := make([]byte, len(p.Value))
	copy(data, p.Value)

	if owner, ok := l.cccdOwner(p.Handle); ok && len(data) == protocol.CCCDLen {
		l.subscribed[owner] = data[0]&byte(protocol.CCCDNotificationsEnabled) != 0
	} else {
		l.values[p.Handle] = data
	}
	l.peripheralEvents <- StackEvent{Kind: EvtGATTSWrite, Conn: conn, Handle: p.Handle, Data: data}
	if p.Op == WriteRequest {
		l.centralEvents <- StackEvent{Kind: EvtWriteResponse, Conn: conn, Handle: p.Handle}
	}
	return nil
}

// Read queues a read response carrying the last value written to handle.
func (c *LoopbackCentral) Read(conn ConnHandle, handle AttrHandle) error {
	l := c.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkSubmit(conn); err != nil {
		return err
	}
	data := append([]byte(nil), l.values[handle]...)
	l.centralEvents <- StackEvent{Kind: EvtReadResponse, Conn: conn, Handle: handle, Data: data}
	return nil
}

func (l *Loopback) checkSubmit(conn ConnHandle) error {
	if !l.connected || conn != loopbackConn {
		return fmt.Errorf("loopback: %w: not connected", protocol.ErrInvalidState)
	}
	return nil
}

// LoopbackPeripheral implements GATTServer over a Loopback.
type LoopbackPeripheral struct{ l *Loopback }

var _ GATTServer = (*LoopbackPeripheral)(nil)

func (p *LoopbackPeripheral) AddService(def ServiceDef) ([]CharHandles, error) {
	l := p.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if def.UUID == "" {
		return nil, fmt.Errorf("loopback: add service: %w: empty UUID", protocol.ErrInvalidParameter)
	}
	// Handle layout mirrors a GATT table: service declaration, then per
	// characteristic a declaration, the value, and an optional CCCD.
	l.nextHandle++
	handles := make([]CharHandles, len(def.Characteristics))
	for i, ch := range def.Characteristics {
		l.nextHandle++
		handles[i].Value = l.nextHandle
		l.nextHandle++
		if ch.Props&PropNotify != 0 {
			handles[i].CCCD = l.nextHandle
			l.nextHandle++
		}
	}
	l.services = append(l.services, loopbackService{def: def, handles: handles})
	return handles, nil
}

func (p *LoopbackPeripheral) Notify(conn ConnHandle, handle AttrHandle, data []byte) error {
	l := p.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected || conn != loopbackConn {
		return fmt.Errorf("loopback: notify: %w: not connected", protocol.ErrInvalidState)
	}
	if !l.subscribed[handle] {
		return fmt.Errorf("loopback: notify: %w: notifications not enabled", protocol.ErrInvalidState)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	l.centralEvents <- StackEvent{Kind: EvtHVX, Conn: conn, Handle: handle, Data: cp}
	return nil
}
