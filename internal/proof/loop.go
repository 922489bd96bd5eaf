// Package proof runs the gateway's periodic proof-of-possession audit: pick
// a batch of placement rows, issue a nonce-chained challenge for each, send
// it through the multiplexer, and record the outcome. It never talks to a
// peer directly — every dispatch goes through (*multiplexer.Multiplexer).Audit.
package proof

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/multiplexer"
)

const (
	tickInterval      = 60 * time.Second
	batchSize         = 8
	challengeDeadline = 90 * time.Second
)

// Loop is the gateway's audit daemon. Grounded on the teacher's
// HealthChecker loop/tick/Stop shape: a ticker-driven loop that fans each
// tick's batch out over plain goroutines and waits for all of them before
// the next tick starts.
type Loop struct {
	catalog *catalog.Store
	mux     *multiplexer.Multiplexer
	log     *logrus.Entry

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Loop. Call Start to begin ticking.
func New(store *catalog.Store, mux *multiplexer.Multiplexer, log *logrus.Entry) *Loop {
	return &Loop{catalog: store, mux: mux, log: log, stop: make(chan struct{})}
}

// Start launches the background ticking goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop terminates the loop and waits for the in-flight tick, if any, to
// finish.
func (l *Loop) Stop() {
	close(l.stop)
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), tickInterval)
			l.Tick(ctx)
			cancel()
		}
	}
}

// Tick runs one full audit round synchronously: expire overdue pending
// challenges, select the next batch of targets, and dispatch+verify each.
// Exported so it can be invoked directly (e.g. in tests or by a CLI
// one-shot command) without waiting for the ticker.
func (l *Loop) Tick(ctx context.Context) {
	now := time.Now()
	expired, err := l.catalog.ExpirePendingChallenges(ctx, now)
	if err != nil {
		l.log.WithError(err).Warn("expiring overdue challenges failed")
	} else if expired > 0 {
		l.log.WithField("count", expired).Debug("expired overdue challenges")
	}

	targets, err := l.catalog.AuditTargets(ctx, batchSize)
	if err != nil {
		l.log.WithError(err).Warn("selecting audit targets failed")
		return
	}
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.auditOne(ctx, target)
		}()
	}
	wg.Wait()
}

func (l *Loop) auditOne(ctx context.Context, target catalog.ShardPlacement) {
	peerID, err := peer.Decode(target.PeerID)
	if err != nil {
		l.log.WithError(err).WithField("peer_id", target.PeerID).Warn("audit target has unparseable peer id")
		return
	}

	challengeID, challengeHex, nonceHex, err := l.issueChallenge(ctx, target)
	if err != nil {
		l.log.WithError(err).WithField("shard_cid", target.ShardCID).Warn("issuing challenge failed")
		return
	}

	ack, err := l.mux.Audit(ctx, peerID, target.ShardCID, challengeHex, nonceHex)
	at := time.Now()
	if err != nil || !ack.Verified || ack.PeerID != peerID {
		reason := "no verified response"
		if err != nil {
			reason = err.Error()
		} else if ack.PeerID != peerID {
			reason = "response signed by unexpected peer"
		}
		if cerr := l.catalog.CompleteChallenge(ctx, challengeID, false, "", "", "", reason, at); cerr != nil {
			l.log.WithError(cerr).Warn("recording failed challenge failed")
		}
		return
	}

	if cerr := l.catalog.CompleteChallenge(ctx, challengeID, true, ack.ResponseHash, "", "", "", at); cerr != nil {
		l.log.WithError(cerr).Warn("recording verified challenge failed")
		return
	}
	if verr := l.catalog.RecordVerification(ctx, target.ObjectCID, target.ShardIndex, challengeID, at); verr != nil {
		l.log.WithError(verr).Warn("stamping placement verification failed")
	}
}

// issueChallenge delegates to IssueChallenge for the nonce-chain and
// persistence, returning just the fields auditOne needs to drive the
// dispatch. The returned challengeID is the catalog row's own primary key,
// separate from challengeHex, so a rare challenge_hex collision across two
// different targets can never complete the wrong row.
func (l *Loop) issueChallenge(ctx context.Context, target catalog.ShardPlacement) (challengeID, challengeHex, nonceHex string, err error) {
	c, err := IssueChallenge(ctx, l.catalog, target, challengeDeadline)
	if err != nil {
		return "", "", "", err
	}
	return c.ChallengeID, c.ChallengeHex, c.NonceHex, nil
}
