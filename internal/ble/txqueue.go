package ble

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// TxQueueSize is the number of slots in the transmit ring.
const TxQueueSize = 8

// RequestKind tags a TxRequest.
type RequestKind uint8

const (
	KindRead RequestKind = iota
	KindWrite
)

func (k RequestKind) String() string {
	if k == KindRead {
		return "read"
	}
	return "write"
}

// TxRequest is a pending GATT client operation.
type TxRequest struct {
	Kind       RequestKind
	Conn       ConnHandle
	ReadHandle AttrHandle
	Write      WriteParams
}

func (r TxRequest) handle() AttrHandle {
	if r.Kind == KindRead {
		return r.ReadHandle
	}
	return r.Write.Handle
}

// TxState is the state of the queue's single in-flight slot.
type TxState uint8

const (
	// TxIdle: nothing in flight; the next trigger submits the head entry.
	TxIdle TxState = iota
	// TxSubmitting: the head entry is being handed to the stack.
	TxSubmitting
	// TxAwaitingCompletion: the stack accepted an operation and its
	// completion event has not arrived yet.
	TxAwaitingCompletion
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxSubmitting:
		return "submitting"
	case TxAwaitingCompletion:
		return "awaiting-completion"
	}
	return fmt.Sprintf("txstate(%d)", uint8(s))
}

// TxQueue serializes GATT client operations against a stack that allows one
// outstanding operation per connection. Entries drain in FIFO order, one at
// a time; a completion event releases the next one.
type TxQueue struct {
	stack GATTClient
	log   *logrus.Entry

	buf    [TxQueueSize]TxRequest
	insert uint32 // next slot to fill
	drain  uint32 // next slot to submit
	count  int
	state  TxState

	// connection and handle of the operation awaiting completion
	inFlightConn   ConnHandle
	inFlightHandle AttrHandle
}

// NewTxQueue returns an empty queue submitting to stack.
func NewTxQueue(stack GATTClient, log *logrus.Entry) *TxQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TxQueue{stack: stack, log: log.WithField("component", "txqueue")}
}

// Enqueue appends req and immediately tries to submit the head entry. A
// submission failure is not returned: the entry stays queued and the next
// trigger retries it.
func (q *TxQueue) Enqueue(req TxRequest) error {
	if q.count == TxQueueSize {
		return fmt.Errorf("ble: enqueue: %w", protocol.ErrQueueFull)
	}
	q.buf[q.insert] = req
	q.insert = (q.insert + 1) % TxQueueSize
	q.count++

	if err := q.Process(); err != nil {
		q.log.WithError(err).Warn("submission failed, request left queued")
	}
	return nil
}

// Process submits the entry at the drain cursor if the queue is idle and
// non-empty. On success the drain cursor advances and the queue waits for
// a completion; on failure the entry stays in place and the queue returns
// to idle.
func (q *TxQueue) Process() error {
	if q.state != TxIdle || q.count == 0 {
		return nil
	}

	q.state = TxSubmitting
	req := q.buf[q.drain]

	var err error
	switch req.Kind {
	case KindRead:
		err = q.stack.Read(req.Conn, req.ReadHandle)
	default:
		err = q.stack.Write(req.Conn, req.Write)
	}
	if err != nil {
		q.state = TxIdle
		return fmt.Errorf("ble: submit %s request: %w: %w", req.Kind, protocol.ErrSubmission, err)
	}

	q.buf[q.drain] = TxRequest{}
	q.drain = (q.drain + 1) % TxQueueSize
	q.count--
	q.state = TxAwaitingCompletion
	q.inFlightConn, q.inFlightHandle = req.Conn, req.handle()
	q.log.WithFields(logrus.Fields{"kind": req.Kind, "pending": q.count}).Debug("request submitted")
	return nil
}

// OnComplete is the completion trigger: the stack finished the in-flight
// operation. The next queued entry, if any, is submitted.
func (q *TxQueue) OnComplete() {
	if q.state == TxAwaitingCompletion {
		q.state = TxIdle
	}
	if err := q.Process(); err != nil {
		q.log.WithError(err).Warn("submission failed, request left queued")
	}
}

// Complete is the completion trigger for an event naming the operation it
// finishes. While an operation is in flight, a completion for any other
// connection or handle is ignored and false is returned: it belongs to a
// link that has since dropped.
func (q *TxQueue) Complete(conn ConnHandle, handle AttrHandle) bool {
	if q.state == TxAwaitingCompletion && (conn != q.inFlightConn || handle != q.inFlightHandle) {
		q.log.WithFields(logrus.Fields{
			"conn":   conn,
			"handle": handle,
		}).Debug("stale completion ignored")
		return false
	}
	q.OnComplete()
	return true
}

// Reset drops every queued entry and returns to idle.
func (q *TxQueue) Reset() {
	if q.count > 0 {
		q.log.WithField("dropped", q.count).Debug("queue reset")
	}
	q.buf = [TxQueueSize]TxRequest{}
	q.insert, q.drain, q.count = 0, 0, 0
	q.state = TxIdle
	q.inFlightConn, q.inFlightHandle = InvalidConn, InvalidHandle
}

// Len returns the number of entries not yet submitted.
func (q *TxQueue) Len() int { return q.count }

// State returns the in-flight state.
func (q *TxQueue) State() TxState { return q.state }
