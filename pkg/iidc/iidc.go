// Package iidc implements the IIDC 1394-based digital camera register
// protocol (version 1.31) on top of a quadlet-addressed Bus.
//
// The package knows nothing about the transport. A Bus is typically a
// firewire.Node, and tests drive Camera over an in-memory register map.
//
//	info, _ := iidc.ParseROM(node.ROM())
//	cam := iidc.NewCamera(node, info)
//	features, _ := cam.Features()
package iidc

import "errors"

// Bus is the register access a camera needs.
type Bus interface {
	ReadQuadlet(offset uint64) (uint32, error)
	WriteQuadlet(offset uint64, value uint32) error
}

var (
	// ErrNotIIDC is returned by ParseROM when no IIDC unit directory exists.
	ErrNotIIDC = errors.New("iidc: not an IIDC camera")
	// ErrBadROM is returned for truncated or malformed configuration ROMs.
	ErrBadROM = errors.New("iidc: malformed configuration ROM")
	// ErrUnsupported is returned when the camera lacks a capability.
	ErrUnsupported = errors.New("iidc: not supported by camera")
	// ErrFormat7 is returned when the camera flags a Format7 setting error.
	ErrFormat7 = errors.New("iidc: format7 setting rejected")
)
