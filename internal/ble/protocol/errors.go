package protocol

import "errors"

// Protocol-layer errors. Callers wrap them with context and test with
// errors.Is.
var (
	// ErrNullArgument reports a missing object, buffer, or attribute handle.
	ErrNullArgument = errors.New("null argument")
	// ErrInvalidLength reports a record whose length violates the wire contract.
	ErrInvalidLength = errors.New("invalid length")
	// ErrInvalidParameter reports an unknown opcode, event code, or argument value.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidState reports an operation attempted without a connection.
	ErrInvalidState = errors.New("invalid state")
	// ErrSubmission reports that the BLE stack refused an operation.
	ErrSubmission = errors.New("stack submission failed")
	// ErrQueueFull reports a transmit queue overflow. The protocol never has
	// more requests outstanding than the queue holds, so this is a bug.
	ErrQueueFull = errors.New("transmit queue full")
)
