package multiplexer

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/libp2p/go-libp2p/core/network"
)

// notifiee forwards libp2p connection lifecycle events onto the
// multiplexer's own channel so they're processed on its single goroutine
// alongside work and completions, instead of racing against them.
type notifiee struct {
	m *Multiplexer
}

func (n *notifiee) Connected(net network.Network, c network.Conn) {
	addr := c.RemoteMultiaddr().String()
	select {
	case n.m.connEvt <- connEvent{peerID: c.RemotePeer(), address: addr, connected: true}:
	default:
		n.m.log.WithField("peer", c.RemotePeer()).Warn("connection event dropped, channel full")
	}
}

func (n *notifiee) Disconnected(net network.Network, c network.Conn) {
	select {
	case n.m.connEvt <- connEvent{peerID: c.RemotePeer(), connected: false}:
	default:
	}
}

func (n *notifiee) Listen(network.Network, ma.Multiaddr)      {}
func (n *notifiee) ListenClose(network.Network, ma.Multiaddr) {}
