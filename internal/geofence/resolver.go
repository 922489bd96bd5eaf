// Package geofence supplies the multiplexer's AddressResolver: mapping a
// peer's observed remote address to the country and autonomous-system tag
// the placement policy and residency audit need. No CIDR-to-country or
// ASN database ships with this module (none of the pack's dependencies
// cover that concern — see DESIGN.md); Store backs CountryOf with the
// self-reported country_code nodes already submit at registration, cached
// from the catalog and refreshed on a timer, and derives AutonomousSystemOf
// from the address's /24 (IPv4) or /48 (IPv6) prefix as a lightweight,
// same-operator-network proxy rather than a true ASN lookup.
package geofence

import (
	"context"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/catalog"
)

const refreshInterval = 5 * time.Minute

// nodeLister is the subset of *catalog.Store this package needs, narrowed
// to keep the package testable without a live database.
type nodeLister interface {
	ListActiveNodes(ctx context.Context) ([]catalog.Node, error)
}

// Store resolves addresses against a periodically refreshed snapshot of the
// catalog's active node roster.
type Store struct {
	catalog nodeLister
	log     *logrus.Entry

	mu       sync.RWMutex
	byIP     map[string]string // ip address -> country code
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Store and performs one synchronous refresh before
// returning, so the first dispatch after startup already has a populated
// cache.
func New(ctx context.Context, store nodeLister, log *logrus.Entry) *Store {
	s := &Store{
		catalog: store,
		log:     log,
		byIP:    make(map[string]string),
		stop:    make(chan struct{}),
	}
	s.refresh(ctx)
	return s
}

// Start launches the background refresh ticker. Stop must be called to
// release it.
func (s *Store) Start() {
	go s.run()
}

// Stop halts the refresh ticker.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) run() {
	t := time.NewTicker(refreshInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
			s.refresh(ctx)
			cancel()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) refresh(ctx context.Context) {
	nodes, err := s.catalog.ListActiveNodes(ctx)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("geofence roster refresh failed")
		}
		return
	}
	next := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if n.IPAddress != "" {
			next[n.IPAddress] = n.CountryCode
		}
	}
	s.mu.Lock()
	s.byIP = next
	s.mu.Unlock()
}

// CountryOf implements multiplexer.AddressResolver. addr is the libp2p
// multiaddr-derived host portion; unknown addresses resolve to "".
func (s *Store) CountryOf(addr string) string {
	host := hostOnly(addr)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIP[host]
}

// AutonomousSystemOf implements multiplexer.AddressResolver with a
// same-subnet proxy tag rather than a genuine ASN lookup: every address
// sharing the same /24 (IPv4) or /48 (IPv6) prefix maps to the same tag, so
// the per-AS placement cap still rejects a cluster of peers sitting behind
// one operator's network block even though it cannot tell two genuinely
// distinct ASes on the same /24 apart.
func (s *Store) AutonomousSystemOf(addr string) string {
	host := hostOnly(addr)
	ip := net.ParseIP(host)
	if ip == nil {
		return "unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		return (&net.IPNet{IP: v4.Mask(net.CIDRMask(24, 32)), Mask: net.CIDRMask(24, 32)}).String()
	}
	return (&net.IPNet{IP: ip.Mask(net.CIDRMask(48, 128)), Mask: net.CIDRMask(48, 128)}).String()
}

// hostOnly extracts the bare IP from a libp2p remote multiaddr such as
// "/ip4/10.0.0.5/tcp/4001"; it falls back to net.SplitHostPort for plain
// "host:port" strings so the resolver also works against the ip_address
// column, which stores a bare host.
func hostOnly(addr string) string {
	if maddr, err := ma.NewMultiaddr(addr); err == nil {
		if ip, err := maddr.ValueForProtocol(ma.P_IP4); err == nil {
			return ip
		}
		if ip, err := maddr.ValueForProtocol(ma.P_IP6); err == nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
