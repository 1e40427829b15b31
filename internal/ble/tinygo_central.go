package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

const tinygoEventBuffer = 64

var errOperationPending = errors.New("ble: a GATT operation is already outstanding")

// TinyGoCentral implements GATTClient with tinygo-org/bluetooth. tinygo
// exposes characteristics as objects rather than attribute handles, so the
// central assigns synthetic handles at discovery time: every characteristic
// gets a value handle and the handle after it stands for its CCCD. Each link
// also gets a fresh connection handle, so completions from goroutines that
// outlive their link can be told apart from the current link's.
type TinyGoCentral struct {
	adapter *bluetooth.Adapter
	log     *logrus.Entry
	events  chan StackEvent
	lost    chan struct{}

	mu         sync.Mutex
	discover   []string
	device     *bluetooth.Device
	address    string
	chars      map[AttrHandle]*bluetooth.DeviceCharacteristic
	cccdOf     map[AttrHandle]AttrHandle // CCCD handle -> value handle
	nextHandle AttrHandle
	conn       ConnHandle // current link, InvalidConn when down
	lastConn   ConnHandle
	pending    bool
}

// NewTinyGoCentral wraps the default adapter.
func NewTinyGoCentral(log *logrus.Entry) *TinyGoCentral {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TinyGoCentral{
		adapter: bluetooth.DefaultAdapter,
		log:     log.WithField("component", "tinygo"),
		events:  make(chan StackEvent, tinygoEventBuffer),
		lost:    make(chan struct{}, 1),
		conn:    InvalidConn,
	}
}

var _ GATTClient = (*TinyGoCentral)(nil)

// Events delivers the central's stack events.
func (c *TinyGoCentral) Events() <-chan StackEvent { return c.events }

// Enable powers on the adapter and registers the disconnect handler.
func (c *TinyGoCentral) Enable() error {
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		c.mu.Lock()
		ours := c.device != nil && device.Address.String() == c.address
		conn := c.conn
		if ours {
			c.resetLocked()
		}
		c.mu.Unlock()
		if ours {
			c.log.Warn("peripheral disconnected")
			c.events <- StackEvent{Kind: EvtDisconnected, Conn: conn}
			select {
			case c.lost <- struct{}{}:
			default:
			}
		}
	})
	return nil
}

func (c *TinyGoCentral) resetLocked() {
	c.device = nil
	c.address = ""
	c.chars = nil
	c.cccdOf = nil
	c.conn = InvalidConn
	c.pending = false
}

// nextConnLocked hands out the connection handle for a new link.
func (c *TinyGoCentral) nextConnLocked() ConnHandle {
	c.lastConn++
	if c.lastConn == InvalidConn {
		c.lastConn = 1
	}
	return c.lastConn
}

func (c *TinyGoCentral) RegisterDiscovery(serviceUUID string) error {
	if _, err := bluetooth.ParseUUID(serviceUUID); err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discover = append(c.discover, serviceUUID)
	return nil
}

// Scan returns the address of the first peripheral advertising one of the
// registered services, or ctx's error if none shows up.
func (c *TinyGoCentral) Scan(ctx context.Context) (string, error) {
	c.mu.Lock()
	var uuids []bluetooth.UUID
	for _, s := range c.discover {
		u, _ := bluetooth.ParseUUID(s)
		uuids = append(uuids, u)
	}
	c.mu.Unlock()
	if len(uuids) == 0 {
		return "", fmt.Errorf("ble: scan: %w: no service registered", protocol.ErrInvalidState)
	}

	found := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.adapter.StopScan()
		case <-done:
		}
	}()

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		for _, u := range uuids {
			if !result.HasServiceUUID(u) {
				continue
			}
			c.log.WithFields(logrus.Fields{
				"address": result.Address.String(),
				"name":    result.LocalName(),
				"rssi":    result.RSSI,
			}).Info("found MHS peripheral")
			select {
			case found <- result.Address.String():
			default:
			}
			_ = adapter.StopScan()
			return
		}
	})
	close(done)

	select {
	case addr := <-found:
		return addr, nil
	default:
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("ble: scan: %w", ctx.Err())
	}
	if err != nil {
		return "", fmt.Errorf("ble: scan: %w", err)
	}
	return "", fmt.Errorf("ble: scan: no MHS peripheral found")
}

// Connect connects to address, posts EvtConnected, then discovers every
// registered service and posts EvtDiscoveryComplete for each one found.
func (c *TinyGoCentral) Connect(ctx context.Context, address string) error {
	var addr bluetooth.Address
	addr.Set(address)

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	var device bluetooth.Device
	select {
	case <-ctx.Done():
		return fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("ble: connect to %s: %w", address, res.err)
		}
		device = res.device
	}

	c.mu.Lock()
	c.device = &device
	c.address = address
	c.chars = make(map[AttrHandle]*bluetooth.DeviceCharacteristic)
	c.cccdOf = make(map[AttrHandle]AttrHandle)
	c.nextHandle = 1
	c.conn = c.nextConnLocked()
	conn := c.conn
	services := append([]string(nil), c.discover...)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"address": address, "conn": conn}).Info("connected")
	c.events <- StackEvent{Kind: EvtConnected, Conn: conn}

	for _, uuid := range services {
		svc, err := c.discoverService(&device, uuid)
		if err != nil {
			c.log.WithError(err).WithField("service", uuid).Warn("discovery failed")
			continue
		}
		c.events <- StackEvent{Kind: EvtDiscoveryComplete, Conn: conn, Service: svc}
	}
	return nil
}

func (c *TinyGoCentral) discoverService(device *bluetooth.Device, uuid string) (*DiscoveredService, error) {
	svcUUID, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}
	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", uuid)
	}
	chars, err := svcs[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	found := &DiscoveredService{UUID: uuid}
	for i := range chars {
		value := c.nextHandle
		cccd := value + 1
		c.nextHandle += 2
		c.chars[value] = &chars[i]
		c.cccdOf[cccd] = value
		found.Characteristics = append(found.Characteristics, DiscoveredCharacteristic{
			UUID:  chars[i].UUID().String(),
			Value: value,
			CCCD:  cccd,
		})
	}
	return found, nil
}

// Disconnect drops the current link, if any.
func (c *TinyGoCentral) Disconnect() error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return nil
	}
	return device.Disconnect()
}

func (c *TinyGoCentral) Write(conn ConnHandle, p WriteParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSubmitLocked(conn); err != nil {
		return err
	}
	value := append([]byte(nil), p.Value...)

	if owner, ok := c.cccdOf[p.Handle]; ok {
		char := c.chars[owner]
		c.pending = true
		go func() {
			err := c.configureNotifications(conn, char, owner, value)
			c.complete(StackEvent{Kind: EvtWriteResponse, Conn: conn, Handle: p.Handle, Err: err})
		}()
		return nil
	}

	char, ok := c.chars[p.Handle]
	if !ok {
		return fmt.Errorf("ble: write: %w: unknown handle %d", protocol.ErrInvalidParameter, p.Handle)
	}
	c.pending = true
	// tinygo only offers write-without-response on every platform; the
	// returned call stands in for the write response.
	go func() {
		_, err := char.WriteWithoutResponse(value)
		c.complete(StackEvent{Kind: EvtWriteResponse, Conn: conn, Handle: p.Handle, Err: err})
	}()
	return nil
}

func (c *TinyGoCentral) configureNotifications(conn ConnHandle, char *bluetooth.DeviceCharacteristic, value AttrHandle, cccd []byte) error {
	if len(cccd) != protocol.CCCDLen {
		return fmt.Errorf("ble: CCCD write: %w: %d bytes", protocol.ErrInvalidLength, len(cccd))
	}
	if cccd[0]&byte(protocol.CCCDNotificationsEnabled) == 0 {
		return char.EnableNotifications(nil)
	}
	return char.EnableNotifications(func(buf []byte) {
		c.events <- StackEvent{
			Kind:   EvtHVX,
			Conn:   conn,
			Handle: value,
			Data:   append([]byte(nil), buf...),
		}
	})
}

func (c *TinyGoCentral) Read(conn ConnHandle, handle AttrHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkSubmitLocked(conn); err != nil {
		return err
	}
	char, ok := c.chars[handle]
	if !ok {
		return fmt.Errorf("ble: read: %w: unknown handle %d", protocol.ErrInvalidParameter, handle)
	}
	c.pending = true
	go func() {
		buf := make([]byte, protocol.MaxEventLen)
		n, err := char.Read(buf)
		c.complete(StackEvent{Kind: EvtReadResponse, Conn: conn, Handle: handle, Data: buf[:n], Err: err})
	}()
	return nil
}

func (c *TinyGoCentral) checkSubmitLocked(conn ConnHandle) error {
	if c.device == nil || conn != c.conn {
		return fmt.Errorf("ble: %w: not connected", protocol.ErrInvalidState)
	}
	if c.pending {
		return errOperationPending
	}
	return nil
}

// complete posts the completion of the outstanding operation. A completion
// for a link that has since dropped is discarded.
func (c *TinyGoCentral) complete(evt StackEvent) {
	c.mu.Lock()
	if evt.Conn != c.conn {
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"conn": evt.Conn, "handle": evt.Handle}).Debug("dropping completion from old link")
		return
	}
	c.pending = false
	c.mu.Unlock()
	c.events <- evt
}

// ConnectWithRetry scans (when address is empty) and connects, retrying
// with exponential backoff until it succeeds or ctx is done.
func (c *TinyGoCentral) ConnectWithRetry(ctx context.Context, address string, scanTimeout time.Duration, maxBackoff time.Duration) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, maxBackoff)
			c.log.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": delay}).Info("connect backoff")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		target := address
		if target == "" {
			scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
			addr, err := c.Scan(scanCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.WithError(err).WithField("attempt", attempt+1).Warn("scan failed")
				continue
			}
			target = addr
		}

		if err := c.Connect(ctx, target); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(err).WithField("attempt", attempt+1).Warn("connect failed")
			continue
		}
		return nil
	}
}

// Maintain keeps a link up until ctx is done: it connects, waits for the
// link to drop, and connects again.
func (c *TinyGoCentral) Maintain(ctx context.Context, address string, scanTimeout, maxBackoff time.Duration) error {
	for {
		if err := c.ConnectWithRetry(ctx, address, scanTimeout, maxBackoff); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			_ = c.Disconnect()
			return ctx.Err()
		case <-c.lost:
			c.log.Info("reconnecting")
		}
	}
}

// backoffDelay returns the delay before retry attempt n, doubling from one
// second and capped at max.
func backoffDelay(attempt int, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}
