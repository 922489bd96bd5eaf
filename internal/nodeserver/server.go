package nodeserver

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"

	"github.com/driftmesh/driftmesh/internal/protocol"
)

// Serve registers h as the stream handler for protocol.ProtocolID on host.
// Each inbound stream gets its own goroutine reading exactly one envelope,
// dispatching it, and writing back the reply envelope before closing.
func Serve(h *Handler, host host.Host) {
	host.SetStreamHandler(protocol.ProtocolID, func(s network.Stream) {
		go serveStream(h, s)
	})
}

func serveStream(h *Handler, s network.Stream) {
	defer s.Close()

	requester := s.Conn().RemotePeer()
	env, err := protocol.ReadEnvelope(s)
	if err != nil {
		h.log.WithError(err).WithField("peer", requester).Debug("read envelope failed")
		return
	}

	reply := &protocol.Envelope{Kind: env.Kind}
	switch env.Kind {
	case protocol.KindStore:
		if env.Store == nil {
			return
		}
		resp := h.HandleStore(requester, *env.Store)
		reply.StoreReply = &resp
	case protocol.KindRetrieve:
		if env.Retrieve == nil {
			return
		}
		resp := h.HandleRetrieve(requester, *env.Retrieve)
		reply.RetrieveReply = &resp
	case protocol.KindAudit:
		if env.Audit == nil {
			return
		}
		resp := h.HandleAudit(requester, *env.Audit)
		reply.AuditReply = &resp
	case protocol.KindDelete:
		if env.Delete == nil {
			return
		}
		resp := h.HandleDelete(requester, *env.Delete)
		reply.DeleteReply = &resp
	default:
		h.log.WithField("kind", env.Kind).Warn("unknown envelope kind")
		return
	}

	if err := protocol.WriteEnvelope(s, reply); err != nil {
		h.log.WithError(err).WithField("peer", requester).Debug("write reply failed")
	}
}
