package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

const (
	testConn      ConnHandle = 3
	testCtrl      AttrHandle = 0x20
	testEvent     AttrHandle = 0x22
	testEventCCCD AttrHandle = 0x23
)

type clientHarness struct {
	stack  *mockClientStack
	client *Client
	events []ClientEvent
}

func newClientHarness(t *testing.T) *clientHarness {
	t.Helper()
	h := &clientHarness{stack: &mockClientStack{}}
	c, err := NewClient(h.stack, func(evt ClientEvent) error {
		h.events = append(h.events, evt)
		return nil
	}, nil)
	require.NoError(t, err)
	h.client = c
	return h
}

func mhsDiscovery(conn ConnHandle) StackEvent {
	return StackEvent{
		Kind: EvtDiscoveryComplete,
		Conn: conn,
		Service: &DiscoveredService{
			UUID: protocol.ServiceUUID,
			Characteristics: []DiscoveredCharacteristic{
				{UUID: protocol.ControlPointUUID, Value: testCtrl, Props: PropWrite},
				{UUID: protocol.EventUUID, Value: testEvent, CCCD: testEventCCCD, Props: PropNotify},
			},
		},
	}
}

// discover connects the harness and completes the CCCD write issued by
// discovery, leaving the queue idle.
func (h *clientHarness) discover(t *testing.T) {
	t.Helper()
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtConnected, Conn: testConn}))
	require.NoError(t, h.client.HandleStackEvent(mhsDiscovery(testConn)))
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtWriteResponse, Conn: testConn, Handle: testEventCCCD}))
	h.stack.writes = nil
}

func TestNewClientRegistersDiscovery(t *testing.T) {
	h := newClientHarness(t)
	assert.Equal(t, []string{protocol.ServiceUUID}, h.stack.registered)
	assert.False(t, h.client.Connected())
	assert.False(t, h.client.Ready())
}

func TestNewClientNilArguments(t *testing.T) {
	_, err := NewClient(nil, func(ClientEvent) error { return nil }, nil)
	assert.ErrorIs(t, err, protocol.ErrNullArgument)

	_, err = NewClient(&mockClientStack{}, nil, nil)
	assert.ErrorIs(t, err, protocol.ErrNullArgument)
}

func TestClientDiscoveryEnablesNotifications(t *testing.T) {
	h := newClientHarness(t)
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtConnected, Conn: testConn}))
	require.NoError(t, h.client.HandleStackEvent(mhsDiscovery(testConn)))

	require.Len(t, h.stack.writes, 1)
	w := h.stack.writes[0]
	assert.Equal(t, testEventCCCD, w.Handle)
	assert.Equal(t, WriteRequest, w.Op)
	assert.Equal(t, []byte{0x01, 0x00}, w.Value)
	assert.Equal(t, testConn, h.stack.conns[0])

	require.Len(t, h.events, 1)
	assert.Equal(t, ClientDiscoveryComplete, h.events[0].Type)
	assert.True(t, h.client.Ready())
}

func TestClientIgnoresOtherServices(t *testing.T) {
	h := newClientHarness(t)
	evt := mhsDiscovery(testConn)
	evt.Service.UUID = "0000180f-0000-1000-8000-00805f9b34fb"

	require.NoError(t, h.client.HandleStackEvent(evt))
	assert.Empty(t, h.events)
	assert.Empty(t, h.stack.writes)
	assert.False(t, h.client.Ready())
}

func TestClientSendCommandWrites(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	require.NoError(t, h.client.SetTempThreshold(-30))
	require.Len(t, h.stack.writes, 1)
	assert.Equal(t, testCtrl, h.stack.writes[0].Handle)
	assert.Equal(t, []byte{0x04, 0xE2, 0xFF}, h.stack.writes[0].Value)

	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtWriteResponse, Conn: testConn, Handle: testCtrl}))
	require.NoError(t, h.client.GetTemperature())
	require.Len(t, h.stack.writes, 2)
	assert.Equal(t, []byte{0x01}, h.stack.writes[1].Value)
}

func TestClientSendBeforeDiscovery(t *testing.T) {
	h := newClientHarness(t)
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtConnected, Conn: testConn}))

	err := h.client.GetTemperature()
	require.ErrorIs(t, err, protocol.ErrNullArgument)
	assert.Empty(t, h.stack.writes)
}

func TestClientSendAfterDisconnect(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtDisconnected, Conn: testConn}))

	assert.False(t, h.client.Connected())
	err := h.client.SetMotorOff()
	require.Error(t, err)
	assert.Empty(t, h.stack.writes)
}

func TestClientSendRawLength(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	for _, n := range []int{0, 2, 4} {
		err := h.client.SendRaw(make([]byte, n))
		assert.ErrorIs(t, err, protocol.ErrInvalidLength, "len %d", n)
	}
	assert.Empty(t, h.stack.writes)
}

func TestClientSendInvalidOpcode(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	err := h.client.SendCommand(protocol.Command{Opcode: 0x09})
	require.ErrorIs(t, err, protocol.ErrInvalidParameter)
	assert.Empty(t, h.stack.writes)
}

func TestClientEnableNotificationsTwice(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	require.NoError(t, h.client.EnableNotifications())
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtWriteResponse, Conn: testConn, Handle: testEventCCCD}))
	require.NoError(t, h.client.EnableNotifications())

	require.Len(t, h.stack.writes, 2)
	assert.Equal(t, h.stack.writes[0], h.stack.writes[1])
}

func TestClientEnableNotificationsUnknownHandle(t *testing.T) {
	h := newClientHarness(t)
	err := h.client.EnableNotifications()
	require.ErrorIs(t, err, protocol.ErrNullArgument)
	assert.Empty(t, h.stack.writes)
}

func TestClientDisableNotifications(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	require.NoError(t, h.client.SetNotifications(false))
	require.Len(t, h.stack.writes, 1)
	assert.Equal(t, []byte{0x00, 0x00}, h.stack.writes[0].Value)
}

func TestClientDecodesNotification(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)
	h.events = nil

	err := h.client.HandleStackEvent(StackEvent{
		Kind:   EvtHVX,
		Conn:   testConn,
		Handle: testEvent,
		Data:   []byte{0x00, 0x17, 0x00},
	})
	require.NoError(t, err)
	require.Len(t, h.events, 1)
	assert.Equal(t, ClientNotification, h.events[0].Type)
	assert.Equal(t, protocol.EventCurrentTemperature, h.events[0].Event.Code)
	assert.Equal(t, uint16(23), h.events[0].Event.Value)
}

func TestClientIgnoresNotificationOnOtherHandle(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)
	h.events = nil

	err := h.client.HandleStackEvent(StackEvent{Kind: EvtHVX, Conn: testConn, Handle: 0x99, Data: []byte{0x00, 0x01}})
	require.NoError(t, err)
	assert.Empty(t, h.events)
}

func TestClientRejectsMalformedNotification(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)
	h.events = nil

	err := h.client.HandleStackEvent(StackEvent{Kind: EvtHVX, Conn: testConn, Handle: testEvent, Data: []byte{0x07, 0x01}})
	require.ErrorIs(t, err, protocol.ErrInvalidParameter)

	err = h.client.HandleStackEvent(StackEvent{Kind: EvtHVX, Conn: testConn, Handle: testEvent, Data: make([]byte, 21)})
	require.ErrorIs(t, err, protocol.ErrInvalidLength)
	assert.Empty(t, h.events)
}

func TestClientDisconnectResetsQueue(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	require.NoError(t, h.client.GetTemperature())
	require.NoError(t, h.client.GetTempThreshold())
	assert.Equal(t, 1, h.client.Queue().Len())

	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtDisconnected, Conn: testConn}))
	assert.Equal(t, 0, h.client.Queue().Len())
	assert.Equal(t, TxIdle, h.client.Queue().State())
}

func TestClientRead(t *testing.T) {
	h := newClientHarness(t)
	h.discover(t)

	require.NoError(t, h.client.Read(testCtrl))
	assert.Equal(t, []AttrHandle{testCtrl}, h.stack.reads)

	assert.ErrorIs(t, h.client.Read(InvalidHandle), protocol.ErrNullArgument)
}

func TestClientIgnoresCompletionFromDroppedLink(t *testing.T) {
	h := newClientHarness(t)
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtConnected, Conn: testConn}))
	require.NoError(t, h.client.HandleStackEvent(mhsDiscovery(testConn)))
	require.NoError(t, h.client.GetTemperature())
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtDisconnected, Conn: testConn}))

	relink := testConn + 1
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtConnected, Conn: relink}))
	require.NoError(t, h.client.HandleStackEvent(mhsDiscovery(relink)))
	require.NoError(t, h.client.GetTempThreshold())
	require.Len(t, h.stack.writes, 2)

	// The first link's CCCD write finishes late.
	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtWriteResponse, Conn: testConn, Handle: testEventCCCD}))
	assert.Len(t, h.stack.writes, 2)
	assert.Equal(t, TxAwaitingCompletion, h.client.Queue().State())
	assert.Equal(t, 1, h.client.Queue().Len())

	require.NoError(t, h.client.HandleStackEvent(StackEvent{Kind: EvtWriteResponse, Conn: relink, Handle: testEventCCCD}))
	require.Len(t, h.stack.writes, 3)
	assert.Equal(t, []byte{0x02}, h.stack.writes[2].Value)
	assert.Equal(t, relink, h.stack.conns[2])
}
