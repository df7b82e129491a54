// file: pkg/consensus/leader.go
package consensus

import (
	"context"
	"sync"
	"time"
)

// LeaderConfig tunes the block-production loop.
type LeaderConfig struct {
	MaxTxPerBlock int
	PhaseTimeout  time.Duration
	IdlePoll      time.Duration
}

// Leader drives block production whenever this RPU is the elected leader
// for the current leader_term: drain the queue, Prepare, Append, Commit, in
// lock-step, one block at a time. It is a thin driver over Follower; every
// state transition still runs through the same handlers a remote peer's
// envelope would go through, including this RPU's own envelopes, so there
// is exactly one code path for applying a block.
type Leader struct {
	f   *Follower
	cfg LeaderConfig
}

func NewLeader(f *Follower, cfg LeaderConfig) *Leader {
	if cfg.MaxTxPerBlock <= 0 {
		cfg.MaxTxPerBlock = 500
	}
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = 4 * time.Second
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = 200 * time.Millisecond
	}
	return &Leader{f: f, cfg: cfg}
}

// Run blocks until ctx is cancelled, producing blocks for every leader_term
// during which this RPU is elected leader.
func (l *Leader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		term := l.f.LeaderTerm()
		if l.f.roster.LeaderFor(term) != l.f.roster.Self() {
			if !sleepCtx(ctx, l.cfg.IdlePoll) {
				return
			}
			continue
		}

		if l.f.queue.Len() == 0 {
			if !sleepCtx(ctx, l.cfg.IdlePoll) {
				return
			}
			continue
		}

		if err := l.produceOne(ctx, term); err != nil {
			l.f.logErr("leader_round_failed", "leader_term", term, "err", err)
			if !sleepCtx(ctx, l.cfg.IdlePoll) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Leader) produceOne(ctx context.Context, term LeaderTerm) error {
	f := l.f

	f.mu.Lock()
	height := f.committed + 1
	prevHash := f.lastHash
	f.mu.Unlock()

	txs := f.queue.Take(l.cfg.MaxTxPerBlock)
	if len(txs) == 0 {
		return nil
	}

	body := Body{LeaderTerm: term, Height: height, PrevBlockHash: prevHash, Transactions: txs}
	blockHash := body.Hash()

	prepareCtx, cancel := context.WithTimeout(ctx, l.cfg.PhaseTimeout)
	ackPrepare, err := l.broadcastAndCollect(prepareCtx, PrepareMsg{LeaderTerm: term, BlockNumber: height, BlockHash: blockHash})
	cancel()
	if err != nil {
		f.mu.Lock()
		f.requestViewChangeAndUnlock(ctx)
		return err
	}

	appendCtx, cancel := context.WithTimeout(ctx, l.cfg.PhaseTimeout)
	ackAppend, err := l.broadcastAndCollect(appendCtx, AppendMsg{
		LeaderTerm:           term,
		BlockNumber:          height,
		BlockHash:            blockHash,
		AckPrepareSignatures: ackPrepare,
		Transactions:         txs,
	})
	cancel()
	if err != nil {
		f.mu.Lock()
		f.requestViewChangeAndUnlock(ctx)
		return err
	}

	commitCtx, cancel := context.WithTimeout(ctx, l.cfg.PhaseTimeout)
	_, err = l.broadcastAndCollect(commitCtx, CommitMsg{
		LeaderTerm:          term,
		BlockNumber:         height,
		BlockHash:           blockHash,
		AckAppendSignatures: ackAppend,
	})
	cancel()
	// By this point the Commit has been sent to every peer, this RPU's own
	// copy included (broadcastAndCollect delivers to all of them
	// concurrently), so a collection failure here only means fewer than a
	// supermajority of AckCommit replies arrived in time; it is logged and
	// does not trigger a view-change.
	if err != nil {
		f.logErr("commit_collection_incomplete", "height", height, "err", err)
	}

	return nil
}

// broadcastAndCollect signs msg, delivers it to every peer (self included,
// via the same HandleEnvelope path a network message would take), and
// returns the supermajority of acknowledging signatures keyed by peer, or
// an error if ctx expires first.
func (l *Leader) broadcastAndCollect(ctx context.Context, msg Message) (map[PeerID]Signature, error) {
	f := l.f
	env := Sign(f.signer, msg)

	peers := f.roster.Peers()
	type result struct {
		peer PeerID
		sig  Signature
	}
	results := make(chan result, len(peers))

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			var reply *Envelope
			var err error
			if p.ID == f.roster.Self() {
				reply, err = f.HandleEnvelope(ctx, env)
			} else {
				r, sendErr := f.net.Send(ctx, p.ID, env)
				if sendErr != nil {
					err = sendErr
				} else {
					reply = &r
				}
			}
			if err != nil || reply == nil {
				return
			}
			if verifyErr := Verify(f.roster, *reply); verifyErr != nil {
				return
			}
			if reply.Msg.Kind() != ackKindFor(msg.Kind()) {
				return
			}
			select {
			case results <- result{peer: reply.Peer, sig: reply.Signature}:
			default:
			}
		}(p)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	collected := make(map[PeerID]Signature)
	for {
		if f.roster.Supermajority(len(collected)) {
			return collected, nil
		}
		select {
		case r := <-results:
			collected[r.peer] = r.sig
		case <-done:
			if f.roster.Supermajority(len(collected)) {
				return collected, nil
			}
			return collected, notEnoughSignatures()
		case <-ctx.Done():
			return collected, ctx.Err()
		}
	}
}

func ackKindFor(k MessageKind) MessageKind {
	switch k {
	case KindPrepare:
		return KindAckPrepare
	case KindAppend:
		return KindAckAppend
	case KindCommit:
		return KindAckCommit
	default:
		return k
	}
}
