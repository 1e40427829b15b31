package ble

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// ServerEventType tags a ServerEvent.
type ServerEventType int

const (
	// ServerCommand: the client wrote a valid control-point record.
	ServerCommand ServerEventType = iota + 1
	// ServerNotificationsEnabled: the client enabled event notifications.
	ServerNotificationsEnabled
	// ServerNotificationsDisabled: the client disabled event notifications.
	ServerNotificationsDisabled
)

func (t ServerEventType) String() string {
	switch t {
	case ServerCommand:
		return "command"
	case ServerNotificationsEnabled:
		return "notifications-enabled"
	case ServerNotificationsDisabled:
		return "notifications-disabled"
	}
	return fmt.Sprintf("server-event(%d)", int(t))
}

// ServerEvent is delivered to the application's ServerHandler.
type ServerEvent struct {
	Type ServerEventType
	// Command is set for ServerCommand.
	Command protocol.Command
}

// ServerHandler receives server events. A returned error is passed back to
// the caller of HandleStackEvent.
type ServerHandler func(evt ServerEvent) error

// Server is the peripheral side of MHS. It owns the service definition,
// validates and decodes control-point writes, and sends event notifications.
type Server struct {
	stack   GATTServer
	handler ServerHandler
	log     *logrus.Entry

	conn          ConnHandle
	controlPoint  CharHandles
	event         CharHandles
	notifyEnabled bool

	// record is the server-owned storage of the control-point value. Writes
	// overlay it from offset 0.
	record [protocol.CommandWithArgLen]byte
}

// ServiceDefinition is the MHS service as registered with the stack.
func ServiceDefinition() ServiceDef {
	return ServiceDef{
		UUID: protocol.ServiceUUID,
		Characteristics: []CharacteristicDef{
			{
				UUID:        protocol.ControlPointUUID,
				Props:       PropWrite,
				MaxLen:      protocol.CommandWithArgLen,
				UserStorage: true,
			},
			{
				UUID:   protocol.EventUUID,
				Props:  PropNotify,
				MaxLen: protocol.MaxEventLen,
			},
		},
	}
}

// NewServer registers the MHS service with stack.
func NewServer(stack GATTServer, handler ServerHandler, log *logrus.Entry) (*Server, error) {
	if stack == nil || handler == nil {
		return nil, fmt.Errorf("ble: new server: %w", protocol.ErrNullArgument)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	handles, err := stack.AddService(ServiceDefinition())
	if err != nil {
		return nil, fmt.Errorf("ble: add MHS service: %w", err)
	}
	if len(handles) != 2 {
		return nil, fmt.Errorf("ble: add MHS service: %w: got %d characteristic handles", protocol.ErrInvalidState, len(handles))
	}
	s := &Server{
		stack:        stack,
		handler:      handler,
		log:          log.WithField("component", "mhs-server"),
		conn:         InvalidConn,
		controlPoint: handles[0],
		event:        handles[1],
	}
	s.log.WithFields(logrus.Fields{
		"ctrl":  s.controlPoint.Value,
		"event": s.event.Value,
		"cccd":  s.event.CCCD,
	}).Debug("MHS service registered")
	return s, nil
}

// Connected reports whether a client is connected.
func (s *Server) Connected() bool { return s.conn != InvalidConn }

// NotificationsEnabled reports whether the connected client enabled event
// notifications.
func (s *Server) NotificationsEnabled() bool { return s.Connected() && s.notifyEnabled }

// Handles returns the control-point and event characteristic handles.
func (s *Server) Handles() (controlPoint, event CharHandles) {
	return s.controlPoint, s.event
}

// HandleStackEvent feeds one stack event to the server. Malformed writes
// are reported as errors and raise no event.
func (s *Server) HandleStackEvent(evt StackEvent) error {
	switch evt.Kind {
	case EvtConnected:
		s.conn = evt.Conn
		s.log.WithField("conn", evt.Conn).Info("client connected")
	case EvtDisconnected:
		s.log.WithField("conn", s.conn).Info("client disconnected")
		s.conn = InvalidConn
		s.notifyEnabled = false
	case EvtGATTSWrite:
		switch evt.Handle {
		case s.event.CCCD:
			return s.onEventCCCDWrite(evt.Data)
		case s.controlPoint.Value:
			return s.onControlPointWrite(evt.Data)
		}
	}
	return nil
}

func (s *Server) onControlPointWrite(data []byte) error {
	if len(data) != protocol.CommandLen && len(data) != protocol.CommandWithArgLen {
		return fmt.Errorf("ble: control point write: %w: %d bytes", protocol.ErrInvalidLength, len(data))
	}
	copy(s.record[:], data)

	// Decode the whole overlaid record: a short write to an argument opcode
	// reuses the argument bytes left by the previous write.
	cmd, err := protocol.UnmarshalCommand(s.record[:])
	if err != nil {
		return fmt.Errorf("ble: control point write: %w", err)
	}
	s.log.WithField("command", cmd).Debug("command received")
	return s.handler(ServerEvent{Type: ServerCommand, Command: cmd})
}

func (s *Server) onEventCCCDWrite(data []byte) error {
	if len(data) != protocol.CCCDLen {
		return fmt.Errorf("ble: event CCCD write: %w: %d bytes", protocol.ErrInvalidLength, len(data))
	}
	evt := ServerEvent{Type: ServerNotificationsDisabled}
	s.notifyEnabled = binary.LittleEndian.Uint16(data)&protocol.CCCDNotificationsEnabled != 0
	if s.notifyEnabled {
		evt.Type = ServerNotificationsEnabled
	}
	s.log.WithField("enabled", s.notifyEnabled).Debug("event notifications configured")
	return s.handler(evt)
}

// Notify sends {code, value} on the event characteristic. It fails without
// touching the stack if the record is too long or no client is connected.
func (s *Server) Notify(code protocol.EventCode, value []byte) error {
	if s == nil {
		return fmt.Errorf("ble: notify: %w", protocol.ErrNullArgument)
	}
	data, err := protocol.MarshalEvent(code, value)
	if err != nil {
		return fmt.Errorf("ble: notify %s: %w", code, err)
	}
	if s.conn == InvalidConn {
		return fmt.Errorf("ble: notify %s: %w: no client connected", code, protocol.ErrInvalidState)
	}
	if err := s.stack.Notify(s.conn, s.event.Value, data); err != nil {
		return fmt.Errorf("ble: notify %s: %w: %w", code, protocol.ErrSubmission, err)
	}
	return nil
}
