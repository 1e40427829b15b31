// Package ble implements the Marsh Host Service (MHS) protocol engine on top
// of an abstract BLE stack: the central-side transmit queue and client, the
// peripheral-side server, and stack bindings (in-memory loopback and
// tinygo bluetooth).
//
// None of the types in this package are safe for concurrent use. Each role
// drives its protocol objects from a single event loop, feeding them the
// StackEvents produced by its stack.
package ble

import "fmt"

// ConnHandle identifies a connection. It is owned by the stack.
type ConnHandle uint16

// InvalidConn marks the absence of a connection.
const InvalidConn ConnHandle = 0xFFFF

// AttrHandle identifies a GATT attribute.
type AttrHandle uint16

// InvalidHandle marks an attribute handle that is not known yet.
const InvalidHandle AttrHandle = 0x0000

// WriteOp selects the GATT write procedure.
type WriteOp uint8

const (
	// WriteRequest expects a write response from the peer.
	WriteRequest WriteOp = iota
	// WriteCommand is a write without response.
	WriteCommand
)

// WriteParams describes a GATT client write.
type WriteParams struct {
	Handle AttrHandle
	Op     WriteOp
	Value  []byte
}

// GATTClient is the central-role stack surface. Operations are
// fire-and-forget: an accepted Read or Write completes later with an
// EvtReadResponse or EvtWriteResponse StackEvent. Only one operation may be
// outstanding per connection; a stack refuses a second one with an error.
type GATTClient interface {
	// RegisterDiscovery asks the stack to discover serviceUUID on every new
	// connection and report it with EvtDiscoveryComplete.
	RegisterDiscovery(serviceUUID string) error
	Read(conn ConnHandle, handle AttrHandle) error
	Write(conn ConnHandle, params WriteParams) error
}

// CharProps is a set of characteristic properties.
type CharProps uint8

const (
	PropRead CharProps = 1 << iota
	PropWrite
	PropNotify
)

// CharacteristicDef declares a characteristic for GATTServer.AddService.
type CharacteristicDef struct {
	UUID   string
	Props  CharProps
	MaxLen int
	// UserStorage marks a value kept by the server instead of the stack.
	UserStorage bool
}

// ServiceDef declares a primary service.
type ServiceDef struct {
	UUID            string
	Characteristics []CharacteristicDef
}

// CharHandles are the attribute handles assigned to a characteristic.
// CCCD is InvalidHandle for characteristics without PropNotify.
type CharHandles struct {
	Value AttrHandle
	CCCD  AttrHandle
}

// GATTServer is the peripheral-role stack surface.
type GATTServer interface {
	// AddService registers def and returns the handles of its
	// characteristics in declaration order.
	AddService(def ServiceDef) ([]CharHandles, error)
	// Notify sends a handle value notification. It either submits or fails
	// immediately.
	Notify(conn ConnHandle, handle AttrHandle, data []byte) error
}

// StackEventKind tags a StackEvent.
type StackEventKind int

const (
	EvtConnected StackEventKind = iota + 1
	EvtDisconnected
	// EvtGATTSWrite is a write from the peer to a local attribute.
	EvtGATTSWrite
	// EvtWriteResponse completes a GATTClient write.
	EvtWriteResponse
	// EvtReadResponse completes a GATTClient read.
	EvtReadResponse
	// EvtHVX is a handle value notification from the peer.
	EvtHVX
	// EvtDiscoveryComplete reports a discovered service.
	EvtDiscoveryComplete
)

func (k StackEventKind) String() string {
	switch k {
	case EvtConnected:
		return "connected"
	case EvtDisconnected:
		return "disconnected"
	case EvtGATTSWrite:
		return "gatts-write"
	case EvtWriteResponse:
		return "write-response"
	case EvtReadResponse:
		return "read-response"
	case EvtHVX:
		return "hvx"
	case EvtDiscoveryComplete:
		return "discovery-complete"
	}
	return fmt.Sprintf("stack-event(%d)", int(k))
}

// DiscoveredCharacteristic is one characteristic of a discovered service.
type DiscoveredCharacteristic struct {
	UUID  string
	Value AttrHandle
	CCCD  AttrHandle
	Props CharProps
}

// DiscoveredService is the result of service discovery.
type DiscoveredService struct {
	UUID            string
	Characteristics []DiscoveredCharacteristic
}

// StackEvent is an event delivered by a BLE stack.
type StackEvent struct {
	Kind   StackEventKind
	Conn   ConnHandle
	Handle AttrHandle
	Data   []byte
	// Err is set on responses whose operation failed at the peer.
	Err error
	// Service is set on EvtDiscoveryComplete.
	Service *DiscoveredService
}
