package ble

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// ClientEventType tags a ClientEvent.
type ClientEventType int

const (
	// ClientDiscoveryComplete: the MHS service was found on the peer and
	// notifications were requested.
	ClientDiscoveryComplete ClientEventType = iota + 1
	// ClientNotification: the peer notified the event characteristic.
	ClientNotification
)

// ClientEvent is delivered to the application's ClientHandler.
type ClientEvent struct {
	Type ClientEventType
	// Event is set for ClientNotification.
	Event protocol.Event
}

// ClientHandler receives client events. A returned error is passed back to
// the caller of HandleStackEvent.
type ClientHandler func(evt ClientEvent) error

// Client is the central side of MHS. It discovers the service, enables event
// notifications, turns commands into control-point writes, and decodes
// notifications.
type Client struct {
	stack   GATTClient
	queue   *TxQueue
	handler ClientHandler
	log     *logrus.Entry

	conn        ConnHandle
	ctrlHandle  AttrHandle // control-point value
	eventHandle AttrHandle // event value
	eventCCCD   AttrHandle
}

// NewClient registers MHS discovery with stack and returns a client with no
// connection and no known handles.
func NewClient(stack GATTClient, handler ClientHandler, log *logrus.Entry) (*Client, error) {
	if stack == nil || handler == nil {
		return nil, fmt.Errorf("ble: new client: %w", protocol.ErrNullArgument)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := stack.RegisterDiscovery(protocol.ServiceUUID); err != nil {
		return nil, fmt.Errorf("ble: register MHS discovery: %w", err)
	}
	return &Client{
		stack:       stack,
		queue:       NewTxQueue(stack, log),
		handler:     handler,
		log:         log.WithField("component", "mhs-client"),
		conn:        InvalidConn,
		ctrlHandle:  InvalidHandle,
		eventHandle: InvalidHandle,
		eventCCCD:   InvalidHandle,
	}, nil
}

// Queue exposes the client's transmit queue.
func (c *Client) Queue() *TxQueue { return c.queue }

// Connected reports whether the client holds a connection.
func (c *Client) Connected() bool { return c.conn != InvalidConn }

// Ready reports whether discovery has produced a control-point handle.
func (c *Client) Ready() bool { return c.Connected() && c.ctrlHandle != InvalidHandle }

// HandleStackEvent feeds one stack event to the client.
func (c *Client) HandleStackEvent(evt StackEvent) error {
	switch evt.Kind {
	case EvtConnected:
		c.conn = evt.Conn
		c.log.WithField("conn", evt.Conn).Debug("connected")
	case EvtDisconnected:
		c.onDisconnect()
	case EvtDiscoveryComplete:
		return c.onDiscovery(evt)
	case EvtHVX:
		return c.onHVX(evt)
	case EvtWriteResponse, EvtReadResponse:
		if evt.Err != nil {
			c.log.WithError(evt.Err).WithField("handle", evt.Handle).Warn("peer rejected request")
		}
		c.queue.Complete(evt.Conn, evt.Handle)
	}
	return nil
}

func (c *Client) onDisconnect() {
	c.log.WithField("conn", c.conn).Debug("disconnected")
	c.conn = InvalidConn
	c.ctrlHandle = InvalidHandle
	c.eventHandle = InvalidHandle
	c.eventCCCD = InvalidHandle
	c.queue.Reset()
}

func (c *Client) onDiscovery(evt StackEvent) error {
	if evt.Service == nil || evt.Service.UUID != protocol.ServiceUUID {
		return nil
	}
	c.conn = evt.Conn

	for _, ch := range evt.Service.Characteristics {
		switch ch.UUID {
		case protocol.ControlPointUUID:
			c.ctrlHandle = ch.Value
		case protocol.EventUUID:
			c.eventHandle = ch.Value
			c.eventCCCD = ch.CCCD
			if err := c.EnableNotifications(); err != nil {
				return fmt.Errorf("ble: enable notifications after discovery: %w", err)
			}
		}
	}
	c.log.WithFields(logrus.Fields{
		"ctrl":  c.ctrlHandle,
		"event": c.eventHandle,
		"cccd":  c.eventCCCD,
	}).Info("MHS service discovered")

	return c.handler(ClientEvent{Type: ClientDiscoveryComplete})
}

func (c *Client) onHVX(evt StackEvent) error {
	if c.eventHandle == InvalidHandle || evt.Handle != c.eventHandle {
		return nil
	}
	e, err := protocol.UnmarshalEvent(evt.Data)
	if err != nil {
		return fmt.Errorf("ble: decode notification: %w", err)
	}
	c.log.WithFields(logrus.Fields{"code": e.Code, "value": e.Value}).Debug("notification")
	return c.handler(ClientEvent{Type: ClientNotification, Event: e})
}

// EnableNotifications writes the notification-enable value to the event
// characteristic's CCCD.
func (c *Client) EnableNotifications() error {
	return c.SetNotifications(true)
}

// SetNotifications enqueues a 2-byte CCCD write. Repeated calls enqueue
// repeated writes.
func (c *Client) SetNotifications(enable bool) error {
	if c == nil || c.eventCCCD == InvalidHandle {
		return fmt.Errorf("ble: configure CCCD: %w: handle unknown", protocol.ErrNullArgument)
	}
	val := protocol.CCCDNotificationsDisabled
	if enable {
		val = protocol.CCCDNotificationsEnabled
	}
	return c.queue.Enqueue(TxRequest{
		Kind: KindWrite,
		Conn: c.conn,
		Write: WriteParams{
			Handle: c.eventCCCD,
			Op:     WriteRequest,
			Value:  []byte{byte(val), byte(val >> 8)},
		},
	})
}

// SendCommand enqueues a control-point write of cmd.
func (c *Client) SendCommand(cmd protocol.Command) error {
	data, err := cmd.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ble: send command: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw enqueues a control-point write of a pre-encoded record. The record
// must be 1 or 3 bytes long.
func (c *Client) SendRaw(data []byte) error {
	if len(data) != protocol.CommandLen && len(data) != protocol.CommandWithArgLen {
		return fmt.Errorf("ble: send command: %w: %d bytes", protocol.ErrInvalidLength, len(data))
	}
	if c.ctrlHandle == InvalidHandle {
		return fmt.Errorf("ble: send command: %w: control point handle unknown", protocol.ErrNullArgument)
	}
	if c.conn == InvalidConn {
		return fmt.Errorf("ble: send command: %w: not connected", protocol.ErrInvalidState)
	}
	value := make([]byte, len(data))
	copy(value, data)
	c.log.WithField("opcode", protocol.Opcode(data[0])).Debug("command queued")
	return c.queue.Enqueue(TxRequest{
		Kind: KindWrite,
		Conn: c.conn,
		Write: WriteParams{
			Handle: c.ctrlHandle,
			Op:     WriteRequest,
			Value:  value,
		},
	})
}

// Read enqueues a read of handle. The result arrives as EvtReadResponse.
func (c *Client) Read(handle AttrHandle) error {
	if handle == InvalidHandle {
		return fmt.Errorf("ble: read: %w", protocol.ErrNullArgument)
	}
	if c.conn == InvalidConn {
		return fmt.Errorf("ble: read: %w: not connected", protocol.ErrInvalidState)
	}
	return c.queue.Enqueue(TxRequest{Kind: KindRead, Conn: c.conn, ReadHandle: handle})
}

// GetTemperature asks for a CURRENT_TEMPERATURE report.
func (c *Client) GetTemperature() error { return c.SendCommand(protocol.GetTemperature()) }

// GetTempThreshold asks for a TEMP_THRESHOLD report.
func (c *Client) GetTempThreshold() error { return c.SendCommand(protocol.GetTempThreshold()) }

// GetMotorSpeed asks for a MOTOR_SPEED report.
func (c *Client) GetMotorSpeed() error { return c.SendCommand(protocol.GetMotorSpeed()) }

// SetTempThreshold sets the heater threshold.
func (c *Client) SetTempThreshold(celsius int16) error {
	return c.SendCommand(protocol.SetTempThreshold(celsius))
}

// SetMotorControl starts a motor.
func (c *Client) SetMotorControl(index uint8, dir protocol.Direction) error {
	return c.SendCommand(protocol.SetMotorControl(index, dir))
}

// SetMotorSpeed sets the motor duty cycle.
func (c *Client) SetMotorSpeed(duty uint8) error { return c.SendCommand(protocol.SetMotorSpeed(duty)) }

// SetMotorOff stops the motors.
func (c *Client) SetMotorOff() error { return c.SendCommand(protocol.SetMotorOff()) }

// SetMusicControl triggers a music transport action.
func (c *Client) SetMusicControl(m protocol.MusicCommand) error {
	return c.SendCommand(protocol.SetMusicControl(m))
}
