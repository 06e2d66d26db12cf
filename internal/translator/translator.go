// Package translator implements the Translation Listener: a single
// background goroutine that receives VRT Command/Context datagrams on a
// UDP socket and dispatches attribute writes through the Mapping
// Registry, grounded on the bridge's discovery.Service receive-loop
// shape but simplified to the single-socket, no-reconnect contract this
// listener has.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hexagon-geo-surv/libiio-vrt/internal/diag"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/hostlib"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/registry"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/vrt"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/writelog"
)

// recvBufSize is the fixed receive buffer size; spec requires at least 8 KiB.
const recvBufSize = 8192

// supportedBits is the set of CIF0 bits this revision can extract a value
// for and dispatch as an attribute write.
var supportedBits = map[int]bool{21: true, 25: true, 26: true, 27: true, 28: true, 29: true}

// Listener is the Translation Listener: start/stop lifecycle around a
// single UDP socket and its dedicated receive goroutine.
type Listener struct {
	hostCtx  hostlib.Context
	registry *registry.Registry
	audit    *writelog.Logger
	diag     *diag.Hub

	mu   sync.Mutex
	conn net.PacketConn
	wg   sync.WaitGroup
}

// New builds a Listener bound to the given host context, mapping
// registry, optional (may be nil) write-audit logger, and optional (may
// be nil) diagnostic event hub.
func New(hostCtx hostlib.Context, reg *registry.Registry, audit *writelog.Logger, hub *diag.Hub) *Listener {
	return &Listener{hostCtx: hostCtx, registry: reg, audit: audit, diag: hub}
}

// Start creates a UDP socket bound to 0.0.0.0:port, marked SO_REUSEADDR so
// a restart doesn't have to wait out the prior socket's TIME_WAIT, and
// spawns the receive-loop goroutine. It is an error to call Start twice
// without an intervening Stop.
func (l *Listener) Start(port uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.New("translator: listener already started")
	}

	lc := net.ListenConfig{Control: applyUDPSocketOptions}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	l.conn = conn
	l.wg.Add(1)
	go l.loop(conn)
	return nil
}

// Stop clears the socket handle before closing it — the loop's blocking
// receive is unblocked by the close, matching the stop-by-close contract
// of the listener this is grounded on. Stop is idempotent and waits for
// the loop goroutine to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.Close()
	l.wg.Wait()
}

func (l *Listener) loop(conn net.PacketConn) {
	defer l.wg.Done()
	buf := make([]byte, recvBufSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		if n <= 0 {
			return
		}
		pkt, err := vrt.Parse(buf[:n])
		if err != nil {
			log.Printf("translator: dropping unparseable packet: %v", err)
			continue
		}
		l.processCommandPacket(context.Background(), pkt)
	}
}

// processCommandPacket implements the dispatch algorithm of spec.md §4.4:
// match every registry entry against the packet's stream ID and CIF0 bit,
// resolve the target attribute through the host context, and issue a
// floating-point write. Any per-mapping failure is logged and the loop
// continues.
func (l *Listener) processCommandPacket(ctx context.Context, pkt *vrt.Packet) {
	if pkt.Header.PacketType != vrt.PacketTypeIFContext || !pkt.HasStreamID {
		return
	}
	cif, err := vrt.ParseCIF(pkt)
	if err != nil {
		log.Printf("translator: CIF0 decode failed for stream 0x%08x: %v", pkt.StreamID, err)
		return
	}

	for _, entry := range l.registry.Iter() {
		if entry.StreamID != pkt.StreamID {
			continue
		}
		bit := int(entry.CIF0Bit)
		if cif.CIF0&(1<<uint(bit)) == 0 {
			continue
		}

		attr, err := l.resolveAttr(entry)
		if err != nil {
			log.Printf("translator: mapping stream=0x%08x bit=%d unresolved: %v", entry.StreamID, entry.CIF0Bit, err)
			if l.audit != nil {
				l.audit.WriteFail(entry.StreamID, entry.CIF0Bit, entry.DeviceName, entry.ChannelName, entry.AttrName, err)
			}
			l.publish(diag.Event{Kind: "error", StreamID: entry.StreamID, CIF0Bit: entry.CIF0Bit, Device: entry.DeviceName, Channel: entry.ChannelName, Attr: entry.AttrName, Detail: err.Error()})
			continue
		}

		if !supportedBits[bit] {
			log.Printf("translator: bit %d has no value-extraction support, skipping mapping for %s/%s", bit, entry.DeviceName, entry.AttrName)
			l.publish(diag.Event{Kind: "skip", StreamID: entry.StreamID, CIF0Bit: entry.CIF0Bit, Device: entry.DeviceName, Channel: entry.ChannelName, Attr: entry.AttrName, Detail: "unsupported CIF0 bit"})
			continue
		}
		value, ok := extractValue(cif, bit)
		if !ok {
			continue
		}

		if err := attr.WriteDouble(ctx, value); err != nil {
			log.Printf("translator: write failed for %s/%s: %v", entry.DeviceName, entry.AttrName, err)
			if l.audit != nil {
				l.audit.WriteFail(entry.StreamID, entry.CIF0Bit, entry.DeviceName, entry.ChannelName, entry.AttrName, err)
			}
			l.publish(diag.Event{Kind: "error", StreamID: entry.StreamID, CIF0Bit: entry.CIF0Bit, Device: entry.DeviceName, Channel: entry.ChannelName, Attr: entry.AttrName, Detail: err.Error()})
			continue
		}
		if l.audit != nil {
			l.audit.WriteOK(entry.StreamID, entry.CIF0Bit, entry.DeviceName, entry.ChannelName, entry.AttrName, value)
		}
		l.publish(diag.Event{Kind: "dispatch", StreamID: entry.StreamID, CIF0Bit: entry.CIF0Bit, Device: entry.DeviceName, Channel: entry.ChannelName, Attr: entry.AttrName})
	}
}

func (l *Listener) publish(ev diag.Event) {
	if l.diag == nil {
		return
	}
	ev.Time = time.Now().UTC()
	l.diag.Publish(ev)
}

// resolveAttr looks up the attribute named by entry through the host
// context, trying the opposite channel direction if the first lookup
// fails (spec.md §4.4 step 5).
func (l *Listener) resolveAttr(entry registry.Entry) (hostlib.Attr, error) {
	dev, err := l.hostCtx.FindDevice(entry.DeviceName)
	if err != nil {
		return nil, err
	}

	switch entry.AttrKind {
	case registry.AttrDevice:
		return dev.FindAttr(entry.AttrName)
	case registry.AttrDebug:
		return dev.FindDebugAttr(entry.AttrName)
	default:
		ch, err := dev.FindChannel(entry.ChannelName, entry.IsOutput)
		if err != nil {
			ch, err = dev.FindChannel(entry.ChannelName, !entry.IsOutput)
			if err != nil {
				return nil, err
			}
		}
		return ch.FindAttr(entry.AttrName)
	}
}

// extractValue pulls the decoded value for a supported CIF0 bit out of
// cif as a float64 attribute-write payload.
func extractValue(cif *vrt.CIFFields, bit int) (float64, bool) {
	switch bit {
	case 21: // Sample Rate
		if !cif.HasSampleRate {
			return 0, false
		}
		return cif.SampleRate, true
	case 25: // IF Band Offset
		if !cif.HasIFBandOffset {
			return 0, false
		}
		return cif.IFBandOffset, true
	case 26: // RF Reference Frequency Offset
		if !cif.HasRFReferenceFrequencyOffset {
			return 0, false
		}
		return cif.RFReferenceFrequencyOffset, true
	case 27: // RF Reference Frequency
		if !cif.HasRFReferenceFrequency {
			return 0, false
		}
		return cif.RFReferenceFrequency, true
	case 28: // IF Reference Frequency
		if !cif.HasIFReferenceFrequency {
			return 0, false
		}
		return cif.IFReferenceFrequency, true
	case 29: // Bandwidth
		if !cif.HasBandwidth {
			return 0, false
		}
		return cif.Bandwidth, true
	default:
		return 0, false
	}
}
