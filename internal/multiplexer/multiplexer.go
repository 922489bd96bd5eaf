package multiplexer

import (
	"context"
	"math/rand"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/metrics"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

// AddressResolver maps an observed remote address to the policy attributes
// the placement hook needs. cmd/gateway backs this with internal/geofence's
// catalog-backed resolver; tests and small deployments can supply a constant
// resolver.
type AddressResolver interface {
	CountryOf(addr string) string
	AutonomousSystemOf(addr string) string
}

// SuperNodeLister answers the catalog query the Retrieve scheduling policy
// uses when the caller has no preferred peer. internal/catalog implements
// this; multiplexer depends only on the interface to avoid an import cycle.
type SuperNodeLister interface {
	TopSuperNodes(ctx context.Context, limit int) ([]peer.ID, error)
}

type peerInfo struct {
	address string
	country string
	as      string
}

type connEvent struct {
	peerID    peer.ID
	address   string
	connected bool
}

type completion struct {
	id   uint64
	env  *protocol.Envelope
	fail bool
}

// Multiplexer is the gateway's single-writer peer connection table and
// request dispatcher. All of its mutable state — the peer table and the
// pending-request map keyed by request id — is touched only from the goroutine running
// Run, so none of it needs a lock.
type Multiplexer struct {
	host     host.Host
	resolver AddressResolver
	nodes    SuperNodeLister
	log      *logrus.Entry
	metrics  *metrics.Registry

	work    chan any
	compl   chan completion
	connEvt chan connEvent

	asCap *asCapTracker
}

// New constructs a Multiplexer bound to host. maxShardsPerAS is the
// anti-collusion cap (N-K is the conventional value); zero disables it.
// metricsReg may be nil, in which case every recording call is a no-op.
func New(h host.Host, resolver AddressResolver, nodes SuperNodeLister, log *logrus.Entry, maxShardsPerAS int, metricsReg *metrics.Registry) *Multiplexer {
	m := &Multiplexer{
		host:     h,
		resolver: resolver,
		nodes:    nodes,
		log:      log,
		metrics:  metricsReg,
		work:     make(chan any, workChannelDepth),
		compl:    make(chan completion, workChannelDepth),
		connEvt:  make(chan connEvent, workChannelDepth),
		asCap:    newASCapTracker(maxShardsPerAS),
	}
	h.Network().Notify(&notifiee{m: m})
	return m
}

// Run is the single cooperative loop. It returns when ctx is cancelled.
func (m *Multiplexer) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	peers := make(map[peer.ID]*peerInfo)
	pendingByID := make(map[uint64]*pending)
	var nextID uint64

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-m.connEvt:
			if ev.connected {
				country := m.resolver.CountryOf(ev.address)
				as := m.resolver.AutonomousSystemOf(ev.address)
				peers[ev.peerID] = &peerInfo{address: ev.address, country: country, as: as}
				m.log.WithFields(logrus.Fields{"peer": ev.peerID, "country": country, "as": as}).Info("peer connected")
			} else {
				delete(peers, ev.peerID)
				m.log.WithField("peer", ev.peerID).Info("peer disconnected")
			}
			m.metrics.SetConnectedPeers(len(peers))

		case raw := <-m.work:
			switch cmd := raw.(type) {
			case StoreCommand:
				m.handleStore(ctx, cmd, peers, pendingByID, &nextID)
			case RetrieveCommand:
				m.handleRetrieve(ctx, cmd, peers, pendingByID, &nextID)
			case DeleteCommand:
				m.handleDelete(ctx, cmd, peers, pendingByID, &nextID)
			case AuditCommand:
				m.handleAudit(ctx, cmd, peers, pendingByID, &nextID)
			}

		case comp := <-m.compl:
			p, ok := pendingByID[comp.id]
			if !ok {
				continue
			}
			delete(pendingByID, comp.id)
			m.deliver(p, comp)

		case now := <-ticker.C:
			for id, p := range pendingByID {
				if now.After(p.deadline) {
					delete(pendingByID, id)
					m.deliverTimeout(p)
				}
			}
		}
	}
}

func connectedPeers(peers map[peer.ID]*peerInfo) []peer.ID {
	out := make([]peer.ID, 0, len(peers))
	for id := range peers {
		out = append(out, id)
	}
	return out
}

func (m *Multiplexer) handleStore(ctx context.Context, cmd StoreCommand, peers map[peer.ID]*peerInfo, pendingByID map[uint64]*pending, nextID *uint64) {
	candidates := connectedPeers(peers)
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	tried := 0
	for _, id := range candidates {
		if tried >= 10 {
			break
		}
		info := peers[id]
		if !geofenceAuthorizes(cmd.GeofenceTag, info.country) {
			continue
		}
		tried++
		m.log.WithFields(logrus.Fields{"peer": id, "as": info.as, "cid": cmd.CID}).Debug("store candidate")
		if !m.asCap.allow(cmd.ObjectCID, info.as) {
			continue
		}

		*nextID++
		id64 := *nextID
		p := &pending{kind: pendingStore, peerID: id, country: info.country, cid: cmd.CID, length: len(cmd.Bytes), started: time.Now(), deadline: time.Now().Add(storeDeadline), storeReply: cmd.Reply}
		pendingByID[id64] = p
		env := &protocol.Envelope{Kind: protocol.KindStore, Store: &protocol.StoreRequest{CID: cmd.CID, Bytes: cmd.Bytes}}
		go m.dispatch(ctx, id64, id, env, storeDeadline)
		return
	}
	cmd.Reply <- StoreAck{Stored: false}
}

func (m *Multiplexer) handleRetrieve(ctx context.Context, cmd RetrieveCommand, peers map[peer.ID]*peerInfo, pendingByID map[uint64]*pending, nextID *uint64) {
	target := cmd.PreferredPeer
	if target != "" {
		if _, ok := peers[target]; !ok {
			target = ""
		}
	}
	if target == "" && m.nodes != nil {
		superNodes, err := m.nodes.TopSuperNodes(ctx, 10)
		if err == nil {
			for _, sn := range superNodes {
				if _, ok := peers[sn]; ok {
					target = sn
					break
				}
			}
		}
	}
	if target == "" {
		candidates := connectedPeers(peers)
		if len(candidates) > 0 {
			target = candidates[rand.Intn(len(candidates))]
		}
	}
	if target == "" {
		cmd.Reply <- RetrieveAck{Found: false}
		return
	}

	*nextID++
	id64 := *nextID
	info := peers[target]
	p := &pending{kind: pendingRetrieve, peerID: target, country: info.country, cid: cmd.CID, started: time.Now(), deadline: time.Now().Add(retrieveDeadline), retrieveReply: cmd.Reply}
	pendingByID[id64] = p
	env := &protocol.Envelope{Kind: protocol.KindRetrieve, Retrieve: &protocol.RetrieveRequest{CID: cmd.CID}}
	go m.dispatch(ctx, id64, target, env, retrieveDeadline)
}

func (m *Multiplexer) handleDelete(ctx context.Context, cmd DeleteCommand, peers map[peer.ID]*peerInfo, pendingByID map[uint64]*pending, nextID *uint64) {
	candidates := connectedPeers(peers)
	if len(candidates) == 0 {
		cmd.Reply <- DeleteAck{Deleted: false}
		return
	}
	target := candidates[rand.Intn(len(candidates))]

	*nextID++
	id64 := *nextID
	p := &pending{kind: pendingDelete, peerID: target, cid: cmd.CID, started: time.Now(), deadline: time.Now().Add(storeDeadline), deleteReply: cmd.Reply}
	pendingByID[id64] = p
	env := &protocol.Envelope{Kind: protocol.KindDelete, Delete: &protocol.DeleteRequest{CID: cmd.CID}}
	go m.dispatch(ctx, id64, target, env, storeDeadline)
}

func (m *Multiplexer) handleAudit(ctx context.Context, cmd AuditCommand, peers map[peer.ID]*peerInfo, pendingByID map[uint64]*pending, nextID *uint64) {
	if _, ok := peers[cmd.PeerID]; !ok {
		cmd.Reply <- AuditAck{Verified: false}
		return
	}

	*nextID++
	id64 := *nextID
	p := &pending{kind: pendingAudit, peerID: cmd.PeerID, cid: cmd.CID, challenge: cmd.ChallengeHex, nonce: cmd.NonceHex, started: time.Now(), deadline: time.Now().Add(auditDeadline), auditReply: cmd.Reply}
	pendingByID[id64] = p
	env := &protocol.Envelope{Kind: protocol.KindAudit, Audit: &protocol.AuditRequest{CID: cmd.CID, ChallengeHex: cmd.ChallengeHex, NonceHex: cmd.NonceHex}}
	go m.dispatch(ctx, id64, cmd.PeerID, env, auditDeadline)
}

// dispatch performs the blocking network round trip off the multiplexer
// goroutine and reports the outcome back over m.compl, which the Run loop
// correlates by id. This is the Go stand-in for the async swarm event
// stream: the main loop never blocks on peer I/O.
func (m *Multiplexer) dispatch(ctx context.Context, id uint64, target peer.ID, req *protocol.Envelope, timeout time.Duration) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := m.host.NewStream(dctx, target, protocol.ProtocolID)
	if err != nil {
		m.log.WithError(err).WithField("peer", target).Debug("outbound stream failed")
		m.compl <- completion{id: id, fail: true}
		return
	}
	defer s.Close()

	if err := protocol.WriteEnvelope(s, req); err != nil {
		m.compl <- completion{id: id, fail: true}
		return
	}
	if err := s.CloseWrite(); err != nil {
		m.log.WithError(err).Debug("close write failed")
	}

	resp, err := protocol.ReadEnvelope(s)
	if err != nil {
		m.compl <- completion{id: id, fail: true}
		return
	}
	m.compl <- completion{id: id, env: resp}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func (m *Multiplexer) deliver(p *pending, comp completion) {
	if comp.fail {
		m.deliverTimeout(p)
		return
	}
	m.metrics.ObserveRoundTrip(p.kind.String(), time.Since(p.started).Seconds())
	switch p.kind {
	case pendingStore:
		ack := StoreAck{PeerID: p.peerID, Country: p.country}
		if comp.env.Kind == protocol.KindStore && comp.env.StoreReply != nil {
			resp := *comp.env.StoreReply
			valid := resp.Stored && resp.VerifyReceipt(p.peerID, p.cid, p.length) && protocol.IsFresh(nowMs(), resp.TimestampMs, freshnessMs)
			ack.Stored = resp.Stored
			ack.SignatureValid = valid
			ack.TimestampMs = resp.TimestampMs
		}
		m.metrics.RecordStoreOutcome(ack.Stored && ack.SignatureValid)
		p.storeReply <- ack
	case pendingRetrieve:
		ack := RetrieveAck{PeerID: p.peerID}
		if comp.env.Kind == protocol.KindRetrieve && comp.env.RetrieveReply != nil {
			resp := *comp.env.RetrieveReply
			valid := resp.VerifyProof(p.peerID, p.cid) && protocol.IsFresh(nowMs(), resp.TimestampMs, freshnessMs)
			if valid {
				ack.Found = true
				ack.Verified = true
				ack.Bytes = resp.Bytes
			}
		}
		m.metrics.RecordRetrieveOutcome(ack.Verified)
		p.retrieveReply <- ack
	case pendingDelete:
		ack := DeleteAck{PeerID: p.peerID}
		if comp.env.Kind == protocol.KindDelete && comp.env.DeleteReply != nil {
			ack.Deleted = comp.env.DeleteReply.Deleted
		}
		m.metrics.RecordDeleteOutcome(ack.Deleted)
		p.deleteReply <- ack
	case pendingAudit:
		ack := AuditAck{PeerID: p.peerID}
		if comp.env.Kind == protocol.KindAudit && comp.env.AuditReply != nil {
			resp := *comp.env.AuditReply
			if resp.VerifyAudit(p.peerID, p.cid, p.challenge, p.nonce) && protocol.IsFresh(nowMs(), resp.TimestampMs, freshnessMs) {
				ack.Verified = true
				ack.ResponseHash = resp.ResponseHash
			}
		}
		m.metrics.RecordAuditOutcome(ack.Verified)
		p.auditReply <- ack
	}
}

func (m *Multiplexer) deliverTimeout(p *pending) {
	m.metrics.ObserveRoundTrip(p.kind.String(), time.Since(p.started).Seconds())
	switch p.kind {
	case pendingStore:
		m.metrics.RecordStoreTimeout()
		p.storeReply <- StoreAck{Stored: false, PeerID: p.peerID, Country: p.country}
	case pendingRetrieve:
		m.metrics.RecordRetrieveTimeout()
		p.retrieveReply <- RetrieveAck{Found: false, PeerID: p.peerID}
	case pendingDelete:
		m.metrics.RecordDeleteTimeout()
		p.deleteReply <- DeleteAck{Deleted: false, PeerID: p.peerID}
	case pendingAudit:
		m.metrics.RecordAuditTimeout()
		p.auditReply <- AuditAck{Verified: false, PeerID: p.peerID}
	}
}

// Submit enqueues cmd onto the work channel, blocking if it is full
// (backpressure-at-dispatch) or returning early if ctx is cancelled first.
func (m *Multiplexer) Submit(ctx context.Context, cmd any) error {
	select {
	case m.work <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store dispatches one store command and waits for its ack. objectCID groups
// this shard with the rest of its object for the AS placement cap; it may
// equal cid when the caller has no broader object to group under. The reply
// channel is buffered so the multiplexer's send can never block even if the
// caller has already walked away (e.g. ctx was cancelled).
func (m *Multiplexer) Store(ctx context.Context, cid, objectCID string, data []byte, geofenceTag string) (StoreAck, error) {
	reply := make(chan StoreAck, 1)
	if err := m.Submit(ctx, StoreCommand{CID: cid, ObjectCID: objectCID, Bytes: data, GeofenceTag: geofenceTag, Reply: reply}); err != nil {
		return StoreAck{}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return StoreAck{}, ctx.Err()
	}
}

// Retrieve dispatches one retrieve command and waits for its ack.
// preferredPeer may be the zero peer.ID to let the scheduling policy choose.
func (m *Multiplexer) Retrieve(ctx context.Context, cid string, preferredPeer peer.ID) (RetrieveAck, error) {
	reply := make(chan RetrieveAck, 1)
	if err := m.Submit(ctx, RetrieveCommand{CID: cid, PreferredPeer: preferredPeer, Reply: reply}); err != nil {
		return RetrieveAck{}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return RetrieveAck{}, ctx.Err()
	}
}

// Delete dispatches one best-effort delete command and waits for its ack.
func (m *Multiplexer) Delete(ctx context.Context, cid string) (DeleteAck, error) {
	reply := make(chan DeleteAck, 1)
	if err := m.Submit(ctx, DeleteCommand{CID: cid, Reply: reply}); err != nil {
		return DeleteAck{}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return DeleteAck{}, ctx.Err()
	}
}

// Audit dispatches one proof-of-possession challenge to a specific peer and
// waits for its ack.
func (m *Multiplexer) Audit(ctx context.Context, target peer.ID, cid, challengeHex, nonceHex string) (AuditAck, error) {
	reply := make(chan AuditAck, 1)
	cmd := AuditCommand{PeerID: target, CID: cid, ChallengeHex: challengeHex, NonceHex: nonceHex, Reply: reply}
	if err := m.Submit(ctx, cmd); err != nil {
		return AuditAck{}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return AuditAck{}, ctx.Err()
	}
}

var _ network.Notifiee = (*notifiee)(nil)
