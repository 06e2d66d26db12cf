// Package registry implements the process-wide Mapping Registry: a table of
// (stream_id, cif0_bit) -> (device, channel?, attr_kind, attr_name) tuples
// consulted by the Translation Listener on every received Context packet.
//
// The registry carries no implicit lock: the contract (spec.md §3, §4.3,
// §5) is that callers finish populating it via Add/LoadFile before the
// listener starts, and mutate it again only after the listener stops.
package registry

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// AttrKind selects which host-library lookup family a mapping targets.
type AttrKind int

const (
	AttrChannel AttrKind = iota
	AttrDevice
	AttrDebug
)

func (k AttrKind) String() string {
	switch k {
	case AttrDevice:
		return "device"
	case AttrDebug:
		return "debug"
	default:
		return "channel"
	}
}

func parseAttrKind(s string) AttrKind {
	switch s {
	case "device":
		return AttrDevice
	case "debug":
		return AttrDebug
	default:
		return AttrChannel
	}
}

// maxFieldLen bounds the string fields copied into an Entry, matching the
// bounded-capacity discipline of the original C mapping struct's
// fixed 64-byte buffers (63 usable bytes plus a terminator).
const maxFieldLen = 63

func truncate(s string) string {
	if len(s) > maxFieldLen {
		return s[:maxFieldLen]
	}
	return s
}

// Entry is a single mapping: "when stream_id's Context packet has cif0_bit
// set, write the decoded value to this device/channel attribute."
type Entry struct {
	ID           uuid.UUID
	StreamID     uint32
	CIF0Bit      uint8
	DeviceName   string
	AttrKind     AttrKind
	ChannelName  string // empty unless AttrKind == AttrChannel
	IsOutput     bool
	AttrName     string
}

// Registry holds mapping entries in insertion order. Iter walks them
// newest-first, matching the original linked-list's prepend-on-add
// semantics (spec.md §4.3's "prepends a mapping").
type Registry struct {
	hostBound bool
	entries   []Entry
}

// ErrNilHostContext is returned by Init when given a nil host context
// reference.
var ErrNilHostContext = fmt.Errorf("registry: host context is nil")

// Init binds the registry to a host-context reference. hostCtx is an
// opaque comparable value (typically a hostlib.Context) used only for the
// nil check — the registry does not otherwise touch it.
func Init(hostCtx any) (*Registry, error) {
	if hostCtx == nil {
		return nil, ErrNilHostContext
	}
	return &Registry{hostBound: true}, nil
}

// Add prepends a new mapping entry. String fields are truncated to the
// bounded-capacity discipline described in spec.md §4.3.
func (r *Registry) Add(streamID uint32, cif0Bit uint8, deviceName string, kind AttrKind, channelName string, isOutput bool, attrName string) Entry {
	e := Entry{
		ID:          uuid.New(),
		StreamID:    streamID,
		CIF0Bit:     cif0Bit,
		DeviceName:  truncate(deviceName),
		AttrKind:    kind,
		ChannelName: truncate(channelName),
		IsOutput:    isOutput,
		AttrName:    truncate(attrName),
	}
	r.entries = append(r.entries, e)
	log.Printf("registry: added mapping stream=0x%08x bit=%d -> %s/[%s]%s/%s",
		streamID, cif0Bit, deviceName, kind, channelName, attrName)
	return e
}

// LoadFile parses a line-delimited mapping file: seven comma-separated
// fields per line (stream_id hex, cif0_bit decimal, device_name,
// attr_kind, channel_name, is_output, attr_name). Lines starting with '#',
// '\r', or '\n' are comments. Lines with other than seven fields are
// logged and skipped. Returns the number of accepted entries.
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' || line[0] == '\r' || line[0] == '\n' {
			continue
		}
		fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
		if len(fields) != 7 {
			log.Printf("registry: ignoring malformed line (need 7 fields): %s", line)
			continue
		}

		streamID64, err := strconv.ParseUint(fields[0], 16, 32)
		if err != nil {
			log.Printf("registry: ignoring line with bad stream_id %q: %v", fields[0], err)
			continue
		}
		bit64, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			log.Printf("registry: ignoring line with bad cif0_bit %q: %v", fields[1], err)
			continue
		}
		kind := parseAttrKind(fields[3])
		isOutput := fields[5] == "true" || fields[5] == "1"

		r.Add(uint32(streamID64), uint8(bit64), fields[2], kind, fields[4], isOutput, fields[6])
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}

	log.Printf("registry: loaded %d mappings from %s", count, path)
	return count, nil
}

// Iter returns every entry in newest-first order (the order in which a
// matching packet's mappings are walked during dispatch).
func (r *Registry) Iter() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[len(r.entries)-1-i] = e
	}
	return out
}

// Cleanup clears every entry. It does not stop a listener — callers are
// expected to stop the listener bound to this registry first (spec.md
// §4.3's "stops the listener if running, then frees every entry" is
// expressed at the call site in this package split, since the listener
// isn't owned by Registry in this Go rewrite).
func (r *Registry) Cleanup() {
	r.entries = nil
}
