// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. The classifier and queue return them unwrapped so the
// ingestion path never allocates.
var (
	// Packet classification errors
	ErrPacketTooShort   = errors.New("sourcewatch: packet too short")
	ErrUnsupportedProto = errors.New("sourcewatch: unsupported protocol")
	ErrMalformedHeader  = errors.New("sourcewatch: malformed header")

	// Hand-off errors
	ErrQueueFull = errors.New("sourcewatch: queue full")

	// Configuration errors
	ErrConfigInvalid = errors.New("sourcewatch: invalid configuration")
)
