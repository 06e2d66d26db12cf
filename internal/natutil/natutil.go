// Package natutil optionally punches a UDP port mapping on the gateway
// for the Translation Listener's port, adapted from the bridge's NAT
// mapper down to the single-port case this bridge needs.
package natutil

import (
	"fmt"
	"log"
	"time"

	gonat "github.com/fd/go-nat"
)

// DefaultTTL is used when MapListenerPort receives a non-positive ttl.
const DefaultTTL = 30 * time.Minute

// Mapper owns a single UDP port mapping on the local gateway.
type Mapper struct {
	nat      gonat.NAT
	internal int
	external int
	desc     string
	ttl      time.Duration
	stop     chan struct{}
}

// Discover locates the local gateway and reports its external IP.
func Discover() (gonat.NAT, string, error) {
	n, err := gonat.DiscoverGateway()
	if err != nil {
		return nil, "", fmt.Errorf("natutil: discovery: %w", err)
	}
	if n == nil {
		return nil, "", fmt.Errorf("natutil: no gateway found")
	}
	ip, err := n.GetExternalAddress()
	if err != nil {
		return nil, "", fmt.Errorf("natutil: external address: %w", err)
	}
	return n, ip.String(), nil
}

// MapListenerPort maps the translator's UDP port through n, returning a
// Mapper the caller must Close on shutdown.
func MapListenerPort(n gonat.NAT, internal int, ttl time.Duration) (*Mapper, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	external, err := n.AddPortMapping("udp", internal, "vrt-translator", ttl)
	if err != nil {
		return nil, fmt.Errorf("natutil: map udp %d: %w", internal, err)
	}
	log.Printf("natutil: mapped udp %d->%d ttl %s", internal, external, ttl)
	return &Mapper{
		nat: n, internal: internal, external: external,
		desc: "vrt-translator", ttl: ttl, stop: make(chan struct{}),
	}, nil
}

// ExternalPort reports the port the gateway actually assigned (may differ
// from the internal port requested).
func (m *Mapper) ExternalPort() int { return m.external }

// StartRefresher renews the mapping before ttl expiry, on a goroutine
// stopped by Close.
func (m *Mapper) StartRefresher(interval time.Duration) {
	if m == nil || m.nat == nil {
		return
	}
	if interval <= 0 {
		interval = m.ttl / 3
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-t.C:
				external, err := m.nat.AddPortMapping("udp", m.internal, m.desc, m.ttl)
				if err != nil {
					log.Printf("natutil: refresh udp %d failed: %v", m.internal, err)
					continue
				}
				m.external = external
			}
		}
	}()
}

// Close stops the refresher and removes the port mapping.
func (m *Mapper) Close() {
	if m == nil || m.nat == nil {
		return
	}
	close(m.stop)
	if err := m.nat.DeletePortMapping("udp", m.internal); err != nil {
		log.Printf("natutil: delete udp %d failed: %v", m.internal, err)
	}
}
