// Package memory is an in-memory hostlib.Context suitable for the VRT
// Backend's synthesized devices and for tests: it keeps every device,
// channel and attribute as plain Go values with no external process on
// the other end.
package memory

import (
	"context"
	"sync"

	"github.com/hexagon-geo-surv/libiio-vrt/internal/hostlib"
)

// Attr is a writable scalar value. Writes are recorded so tests can
// observe the last value applied; when the Write hook is set, the hook
// handles the write and Value is not updated.
type Attr struct {
	name string

	mu    sync.Mutex
	value float64
	Write func(ctx context.Context, value float64) error // optional override hook
}

func NewAttr(name string) *Attr {
	return &Attr{name: name}
}

func (a *Attr) Name() string { return a.name }

func (a *Attr) WriteDouble(ctx context.Context, value float64) error {
	if a.Write != nil {
		return a.Write(ctx, value)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = value
	return nil
}

// Value returns the last value written to the attribute.
func (a *Attr) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// DataFormat describes the sample encoding of a Channel, mirroring the
// iio_data_format shape a real host library reports for a hardware
// channel (bit width, signedness).
type DataFormat struct {
	Bits     int
	IsSigned bool
}

// Channel is a named, directional signal path carrying zero or more
// attributes.
type Channel struct {
	id       string
	isOutput bool
	format   DataFormat
	attrs    map[string]*Attr
}

func NewChannel(id string, isOutput bool, format DataFormat) *Channel {
	return &Channel{id: id, isOutput: isOutput, format: format, attrs: map[string]*Attr{}}
}

func (c *Channel) ID() string        { return c.id }
func (c *Channel) IsOutput() bool    { return c.isOutput }
func (c *Channel) Format() DataFormat { return c.format }

func (c *Channel) AddAttr(name string) *Attr {
	a := NewAttr(name)
	c.attrs[name] = a
	return a
}

func (c *Channel) FindAttr(name string) (hostlib.Attr, error) {
	a, ok := c.attrs[name]
	if !ok {
		return nil, hostlib.ErrNotFound
	}
	return a, nil
}

// Device is a named instrument with channels, device attributes and debug
// attributes.
type Device struct {
	id         string
	name       string
	channels   map[string]*Channel // keyed by id+direction
	attrs      map[string]*Attr
	debugAttrs map[string]*Attr
}

func NewDevice(id, name string) *Device {
	return &Device{
		id:         id,
		name:       name,
		channels:   map[string]*Channel{},
		attrs:      map[string]*Attr{},
		debugAttrs: map[string]*Attr{},
	}
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

func channelKey(id string, output bool) string {
	if output {
		return id + "@out"
	}
	return id + "@in"
}

// AddChannel registers a channel with the given id, direction and data
// format, and returns it for further attribute population.
func (d *Device) AddChannel(id string, output bool, format DataFormat) *Channel {
	ch := NewChannel(id, output, format)
	d.channels[channelKey(id, output)] = ch
	return ch
}

func (d *Device) FindChannel(name string, output bool) (hostlib.Channel, error) {
	ch, ok := d.channels[channelKey(name, output)]
	if !ok {
		return nil, hostlib.ErrNotFound
	}
	return ch, nil
}

func (d *Device) AddAttr(name string) *Attr {
	a := NewAttr(name)
	d.attrs[name] = a
	return a
}

func (d *Device) FindAttr(name string) (hostlib.Attr, error) {
	a, ok := d.attrs[name]
	if !ok {
		return nil, hostlib.ErrNotFound
	}
	return a, nil
}

func (d *Device) AddDebugAttr(name string) *Attr {
	a := NewAttr(name)
	d.debugAttrs[name] = a
	return a
}

func (d *Device) FindDebugAttr(name string) (hostlib.Attr, error) {
	a, ok := d.debugAttrs[name]
	if !ok {
		return nil, hostlib.ErrNotFound
	}
	return a, nil
}

// Context is an in-memory hostlib.Context: a registry of devices keyed by
// name, safe for concurrent AddDevice/FindDevice calls (the backend's
// discovery loop and a caller's lookup may run concurrently).
type Context struct {
	mu      sync.RWMutex
	devices map[string]hostlib.Device
}

func NewContext() *Context {
	return &Context{devices: map[string]hostlib.Device{}}
}

func (c *Context) FindDevice(name string) (hostlib.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[name]
	if !ok {
		return nil, hostlib.ErrNotFound
	}
	return d, nil
}

func (c *Context) Devices() []hostlib.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]hostlib.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

func (c *Context) AddDevice(d hostlib.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[d.Name()] = d
}
