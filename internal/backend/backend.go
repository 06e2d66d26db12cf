// Package backend implements the VRT Backend: passive discovery of
// devices from observed IF_Context stream IDs, synthesizing an in-memory
// device per stream ID with two fixed I/Q channels.
package backend

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hexagon-geo-surv/libiio-vrt/internal/hostlib"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/hostlib/memory"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/vrt"
)

// DefaultPort is used when a vrt: URI omits an explicit port.
const DefaultPort = 1234

// discoveryTimeout bounds each individual receive call.
const discoveryTimeout = 2 * time.Second

// discoveryDeadline bounds the overall discovery loop.
const discoveryDeadline = 2 * time.Second

// version and gitTag are the fixed capability values this backend revision
// reports through GetVersion.
const (
	version = "0.1"
	gitTag  = "v0.1"
)

// ParseURI splits a "vrt:" URI's authority into host and port, defaulting
// the port to DefaultPort when absent.
func ParseURI(uri string) (host string, port int, err error) {
	authority := strings.TrimPrefix(uri, "vrt:")
	authority = strings.TrimPrefix(authority, "//")
	if authority == "" {
		return "", 0, fmt.Errorf("backend: empty vrt: authority")
	}
	h, p, splitErr := net.SplitHostPort(authority)
	if splitErr != nil {
		return authority, DefaultPort, nil
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("backend: bad port %q: %w", p, err)
	}
	return h, portNum, nil
}

// GetVersion reports this backend revision's fixed capability set.
func GetVersion() (major, minor string, tag string) {
	return "0", "1", gitTag
}

// Create validates host (resolution only — it is never used to filter
// the discovery socket), binds a datagram socket to 0.0.0.0:port, runs
// the passive discovery loop for up to discoveryDeadline, and returns a
// populated hostlib.Context. This backend listens for VRT traffic from
// any sender rather than connecting to a single peer: the host named in
// a vrt: URI identifies where the caller expects traffic to originate,
// not a filter the socket itself enforces, matching the discovery
// context this backend is grounded on. Failure to parse any given
// packet is non-fatal; the loop continues until the deadline.
func Create(host string, port int) (hostlib.Context, error) {
	if _, err := net.ResolveIPAddr("ip4", host); err != nil {
		return nil, fmt.Errorf("backend: resolve host %q: %w", host, err)
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("backend: listen :%d: %w", port, err)
	}
	defer conn.Close()

	ctx := memory.NewContext()
	discover(conn, ctx)
	return ctx, nil
}

// Shutdown releases the hostlib.Context returned by Create. The
// discovery socket is already closed synchronously inside Create once
// the discovery loop ends, so there is no live handle left to tear
// down here; Shutdown exists to complete the create/shutdown/get_version
// capability set and give callers a single place to release any
// context-held device/channel state.
func Shutdown(ctx hostlib.Context) error {
	if closer, ok := ctx.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func discover(conn net.PacketConn, ctx *memory.Context) {
	buf := make([]byte, 8192)
	deadline := time.Now().Add(discoveryDeadline)

	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(discoveryTimeout))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Printf("backend: discovery receive ended: %v", err)
			return
		}

		pkt, err := vrt.Parse(buf[:n])
		if err != nil {
			log.Printf("backend: discovery dropping unparseable packet: %v", err)
			continue
		}
		if pkt.Header.PacketType != vrt.PacketTypeIFContext || !pkt.HasStreamID {
			continue
		}
		registerDevice(ctx, pkt.StreamID)
	}
}

func deviceName(streamID uint32) string {
	return fmt.Sprintf("vrt_device_%08x", streamID)
}

func registerDevice(ctx *memory.Context, streamID uint32) {
	name := deviceName(streamID)
	if _, err := ctx.FindDevice(name); err == nil {
		return
	}

	dev := memory.NewDevice(name, name)
	format := memory.DataFormat{Bits: 16, IsSigned: true}
	iChan := dev.AddChannel("voltage0_i", false, format)
	qChan := dev.AddChannel("voltage0_q", false, format)
	iChan.AddAttr("raw")
	qChan.AddAttr("raw")
	ctx.AddDevice(dev)

	log.Printf("backend: discovered %s from stream 0x%08x", name, streamID)
}
