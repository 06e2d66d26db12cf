// Package hostlib models the boundary to the host device-abstraction
// library: the thing that owns real devices, channels and attributes.
// The production system this bridge runs inside is external to this
// module, so the boundary is expressed as a set of interfaces (shaped
// after an IIOD client's device/channel/attribute surface) rather than a
// concrete network client. internal/hostlib/memory provides an in-memory
// implementation satisfying the same interfaces, used by the VRT Backend
// and by tests.
package hostlib

import (
	"context"
	"errors"
)

// ErrNotFound is returned by any Find* lookup that has no match.
var ErrNotFound = errors.New("hostlib: not found")

// Attr is a single scalar or debug attribute that can be written as a
// double-precision value.
type Attr interface {
	Name() string
	WriteDouble(ctx context.Context, value float64) error
}

// Channel is a named, directional signal path on a Device.
type Channel interface {
	ID() string
	IsOutput() bool
	FindAttr(name string) (Attr, error)
}

// Device is a named instrument exposed by the host context: a physical or
// synthesized piece of hardware with channels, device-wide attributes, and
// debug (direct register) attributes.
type Device interface {
	Name() string
	ID() string
	FindChannel(name string, output bool) (Channel, error)
	FindAttr(name string) (Attr, error)
	FindDebugAttr(name string) (Attr, error)
}

// Context is the host device-abstraction's top-level handle: the thing a
// bridge process obtains once at startup and uses to locate devices, and
// that backends use to add the devices they discover.
type Context interface {
	FindDevice(name string) (Device, error)
	Devices() []Device
	AddDevice(d Device)
}
