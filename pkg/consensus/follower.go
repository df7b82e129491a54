// file: pkg/consensus/follower.go
package consensus

import (
	"context"
	"sync"

	"github.com/praxis-chain/rpubft/pkg/crypto"
	"go.uber.org/zap"
)

// Follower runs the per-block state machine described in the follower
// state machine component: it is the only thing that ever advances
// `committed` or mutates the round-state ring, and it does so entirely
// under follower-state lock, acquiring the world-state collaborator only
// while still holding it, per the follower-state -> world-state lock
// ordering.
type Follower struct {
	mu sync.Mutex

	roster *Roster
	signer *crypto.BLSSigner

	leaderTerm LeaderTerm
	committed  BlockNumber
	lastHash   BlockHash
	window     *RoundWindow
	viewStates map[LeaderTerm]*ViewState

	// commitCh is closed and replaced on every successful commit: a
	// broadcast-with-latest-value notification that callers blocked in
	// awaitBlockReady re-check their predicate against.
	commitCh chan struct{}

	queue    *Queue
	store    BlockStore
	world    WorldState
	verifier TxVerifier
	net      Network

	logger         *zap.SugaredLogger
	verboseLogging bool

	// onCommit is invoked after a block is fully committed and applied,
	// used by cmd/node to feed the status API's commit broadcast and the
	// commit WAL. Optional. (The censorship watchdog does not use it; it
	// waits on commitCh.)
	onCommit func(Block)
}

type FollowerConfig struct {
	Roster       *Roster
	Signer       *crypto.BLSSigner
	WindowSize   int
	Queue        *Queue
	Store        BlockStore
	World        WorldState
	Verifier     TxVerifier
	Net          Network
	Logger       *zap.SugaredLogger
	Verbose      bool
}

func NewFollower(cfg FollowerConfig) *Follower {
	return &Follower{
		roster:         cfg.Roster,
		signer:         cfg.Signer,
		window:         NewRoundWindow(cfg.WindowSize),
		viewStates:     make(map[LeaderTerm]*ViewState),
		commitCh:       make(chan struct{}),
		queue:          cfg.Queue,
		store:          cfg.Store,
		world:          cfg.World,
		verifier:       cfg.Verifier,
		net:            cfg.Net,
		logger:         cfg.Logger,
		verboseLogging: cfg.Verbose,
	}
}

func (f *Follower) SetOnCommit(fn func(Block)) { f.onCommit = fn }

func (f *Follower) LeaderTerm() LeaderTerm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaderTerm
}

func (f *Follower) Committed() (BlockNumber, BlockHash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed, f.lastHash
}

func (f *Follower) logw(msg string, kv ...interface{}) {
	if f.logger != nil && f.verboseLogging {
		f.logger.Debugw(msg, kv...)
	}
}

func (f *Follower) logCommit(msg string, kv ...interface{}) {
	if f.logger != nil {
		f.logger.Infow(msg, kv...)
	}
}

func (f *Follower) logErr(msg string, kv ...interface{}) {
	if f.logger != nil {
		f.logger.Warnw(msg, kv...)
	}
}

// HandleEnvelope verifies env against the roster and dispatches it to the
// matching handler. Prepare/Append/Commit replies are mandatory; ViewChange
// and NewView are fire-and-forget within the protocol (the RPC transport
// still gets a nil, nil success so it can close the connection cleanly).
func (f *Follower) HandleEnvelope(ctx context.Context, env Envelope) (*Envelope, error) {
	if err := Verify(f.roster, env); err != nil {
		return nil, err
	}

	switch msg := env.Msg.(type) {
	case PrepareMsg:
		reply, err := f.handlePrepare(ctx, env.Peer, msg)
		if err != nil {
			return nil, err
		}
		signed := Sign(f.signer, reply)
		return &signed, nil
	case AppendMsg:
		reply, err := f.handleAppend(ctx, env.Peer, msg)
		if err != nil {
			return nil, err
		}
		signed := Sign(f.signer, reply)
		return &signed, nil
	case CommitMsg:
		reply, err := f.handleCommit(ctx, env.Peer, msg, &env)
		if err != nil {
			return nil, err
		}
		signed := Sign(f.signer, reply)
		return &signed, nil
	case ViewChangeMsg:
		return nil, f.handleViewChange(ctx, env.Peer, env.Signature, msg)
	case NewViewMsg:
		return nil, f.handleNewView(ctx, env.Peer, msg)
	default:
		return nil, invalidPeer(env.Peer)
	}
}

// awaitBlockReady suspends until committed+1 >= blockNumber, re-checking
// the predicate after every commit notification to avoid a lost wake-up.
func (f *Follower) awaitBlockReady(ctx context.Context, blockNumber BlockNumber) error {
	for {
		f.mu.Lock()
		ready := f.committed+1 >= blockNumber
		ch := f.commitCh
		f.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (f *Follower) isCurrentLeader(term LeaderTerm, peer PeerID) bool {
	return f.roster.LeaderFor(term) == peer
}

// requestViewChangeAndUnlock transitions the view-state for leaderTerm+1 to
// ViewChanging and broadcasts a signed ViewChange. Callers must hold f.mu
// on entry; this releases it (broadcasting requires the network, and the
// lock must never be held across a network call) and does not re-acquire
// it.
func (f *Follower) requestViewChangeAndUnlock(ctx context.Context) {
	target := f.leaderTerm + 1
	vs := f.viewStateLocked(target)
	vs.Phase = ViewChanging
	if vs.Signatures == nil {
		vs.Signatures = make(map[PeerID]Signature)
	}
	f.mu.Unlock()
	f.broadcastViewChange(ctx, target)
}

func (f *Follower) viewStateLocked(term LeaderTerm) *ViewState {
	vs, ok := f.viewStates[term]
	if !ok {
		vs = &ViewState{Phase: ViewWaiting}
		f.viewStates[term] = vs
	}
	return vs
}

func (f *Follower) handlePrepare(ctx context.Context, peer PeerID, msg PrepareMsg) (Message, error) {
	if err := f.awaitBlockReady(ctx, msg.BlockNumber); err != nil {
		return nil, err
	}
	f.mu.Lock()

	if !f.isCurrentLeader(msg.LeaderTerm, peer) {
		f.mu.Unlock()
		return nil, wrongLeader(peer)
	}
	if msg.LeaderTerm != f.leaderTerm {
		f.mu.Unlock()
		return nil, wrongLeaderTerm()
	}
	if msg.BlockNumber != f.committed+1 {
		f.mu.Unlock()
		return nil, wrongBlockNumber(msg.BlockNumber)
	}

	round := f.window.At(msg.BlockNumber)
	if round.Phase != PhaseWaiting {
		current := round.Phase
		f.mu.Unlock()
		return nil, wrongPhase(current, PhaseWaiting)
	}

	round.Phase = PhasePrepare
	round.Meta = PhaseMeta{Leader: peer, BlockHash: msg.BlockHash}
	f.mu.Unlock()

	return AckPrepareMsg{LeaderTerm: msg.LeaderTerm, BlockNumber: msg.BlockNumber, BlockHash: msg.BlockHash}, nil
}

func (f *Follower) handleAppend(ctx context.Context, peer PeerID, msg AppendMsg) (Message, error) {
	if err := f.awaitBlockReady(ctx, msg.BlockNumber); err != nil {
		return nil, err
	}
	f.mu.Lock()

	if !f.isCurrentLeader(msg.LeaderTerm, peer) {
		f.mu.Unlock()
		return nil, wrongLeader(peer)
	}
	if msg.LeaderTerm != f.leaderTerm {
		f.mu.Unlock()
		return nil, wrongLeaderTerm()
	}

	round := f.window.At(msg.BlockNumber)
	var meta PhaseMeta
	switch round.Phase {
	case PhasePrepare:
		meta = round.Meta
	case PhaseWaiting:
		meta = PhaseMeta{Leader: f.roster.LeaderFor(msg.LeaderTerm), BlockHash: msg.BlockHash}
	default:
		current := round.Phase
		f.mu.Unlock()
		return nil, wrongPhase(current, PhaseAppend)
	}

	if msg.BlockHash != meta.BlockHash {
		f.mu.Unlock()
		return nil, changedBlockHash()
	}
	if msg.BlockNumber != f.committed+1 {
		f.mu.Unlock()
		return nil, wrongBlockNumber(msg.BlockNumber)
	}

	if !f.roster.Supermajority(len(msg.AckPrepareSignatures)) {
		f.logErr("append_short_signatures", "block", msg.BlockNumber, "have", len(msg.AckPrepareSignatures))
		f.requestViewChangeAndUnlock(ctx)
		return nil, notEnoughSignatures()
	}
	ackPrepare := AckPrepareMsg{LeaderTerm: msg.LeaderTerm, BlockNumber: msg.BlockNumber, BlockHash: msg.BlockHash}
	for signer, sig := range msg.AckPrepareSignatures {
		if err := f.verifier.IsRPU(signer); err != nil {
			f.requestViewChangeAndUnlock(ctx)
			return nil, permissionDenied(err)
		}
		pk, ok := f.roster.PubKey(signer)
		if !ok || !crypto.Verify(pk, sig, ackPrepare.bytes()) {
			f.requestViewChangeAndUnlock(ctx)
			return nil, invalidSignature(nil)
		}
	}

	if len(msg.Transactions) == 0 {
		f.requestViewChangeAndUnlock(ctx)
		return nil, emptyBlock()
	}

	for _, tx := range msg.Transactions {
		if err := f.verifier.VerifySignature(tx); err != nil {
			f.requestViewChangeAndUnlock(ctx)
			return nil, invalidSignature(err)
		}
		if err := f.verifier.CheckPermission(tx.Signer, tx.Payload); err != nil {
			f.requestViewChangeAndUnlock(ctx)
			return nil, permissionDenied(err)
		}
	}

	body := Body{
		LeaderTerm:    f.leaderTerm,
		Height:        msg.BlockNumber,
		PrevBlockHash: f.lastHash,
		Transactions:  msg.Transactions,
	}
	if body.Hash() != msg.BlockHash {
		f.mu.Unlock()
		return nil, wrongBlockHash()
	}

	round.Phase = PhaseAppend
	round.Meta = meta
	round.Body = body

	var buffered *Envelope
	buffered, round.BufferedCommit = round.BufferedCommit, nil
	if buffered != nil {
		if commitMsg, ok := buffered.Msg.(CommitMsg); ok {
			if _, err := f.handleCommitInnerLocked(ctx, buffered.Peer, commitMsg); err != nil {
				f.logw("buffered_commit_failed", "block", msg.BlockNumber, "err", err)
			} else {
				f.logw("buffered_commit_applied", "block", msg.BlockNumber)
			}
			// handleCommitInnerLocked always releases f.mu before returning.
			return AckAppendMsg{LeaderTerm: msg.LeaderTerm, BlockNumber: msg.BlockNumber, BlockHash: msg.BlockHash}, nil
		}
	}

	f.mu.Unlock()
	return AckAppendMsg{LeaderTerm: msg.LeaderTerm, BlockNumber: msg.BlockNumber, BlockHash: msg.BlockHash}, nil
}

func (f *Follower) handleCommit(ctx context.Context, peer PeerID, msg CommitMsg, env *Envelope) (Message, error) {
	if err := f.awaitBlockReady(ctx, msg.BlockNumber); err != nil {
		return nil, err
	}
	f.mu.Lock()
	return f.handleCommitInnerLocked(ctx, peer, msg)
}

// handleCommitInnerLocked assumes f.mu is held on entry and guarantees it
// is released (exactly once) before returning, on every path, so it can be
// reused both for a directly received Commit and for a buffered one
// replayed from within handleAppend.
func (f *Follower) handleCommitInnerLocked(ctx context.Context, peer PeerID, msg CommitMsg) (Message, error) {
	if !f.isCurrentLeader(msg.LeaderTerm, peer) {
		f.mu.Unlock()
		return nil, wrongLeader(peer)
	}
	if msg.LeaderTerm != f.leaderTerm {
		f.mu.Unlock()
		return nil, wrongLeaderTerm()
	}

	round := f.window.At(msg.BlockNumber)
	switch round.Phase {
	case PhaseWaiting, PhasePrepare:
		current := round.Phase
		round.BufferedCommit = &Envelope{Peer: peer, Msg: msg}
		f.mu.Unlock()
		return nil, wrongPhase(current, PhaseAppend)
	case PhaseAppend:
		// fallthrough to validation below
	default:
		current := round.Phase
		f.mu.Unlock()
		return nil, wrongPhase(current, PhaseAppend)
	}

	meta, body := round.Meta, round.Body

	if msg.BlockHash != meta.BlockHash {
		f.mu.Unlock()
		return nil, changedBlockHash()
	}
	if msg.BlockNumber != f.committed+1 {
		f.mu.Unlock()
		return nil, wrongBlockNumber(msg.BlockNumber)
	}

	if !f.roster.Supermajority(len(msg.AckAppendSignatures)) {
		f.logErr("commit_short_signatures", "block", msg.BlockNumber, "have", len(msg.AckAppendSignatures))
		f.requestViewChangeAndUnlock(ctx)
		return nil, notEnoughSignatures()
	}
	ackAppend := AckAppendMsg{LeaderTerm: msg.LeaderTerm, BlockNumber: msg.BlockNumber, BlockHash: msg.BlockHash}
	for signer, sig := range msg.AckAppendSignatures {
		if err := f.verifier.IsRPU(signer); err != nil {
			f.requestViewChangeAndUnlock(ctx)
			return nil, permissionDenied(err)
		}
		pk, ok := f.roster.PubKey(signer)
		if !ok || !crypto.Verify(pk, sig, ackAppend.bytes()) {
			f.requestViewChangeAndUnlock(ctx)
			return nil, invalidSignature(nil)
		}
	}

	round.Phase = PhaseCommitted
	round.CommittedHash = msg.BlockHash

	block := Block{Body: body, Signatures: msg.AckAppendSignatures}
	if err := f.applyCommitLocked(block); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	f.logCommit("commit", "height", msg.BlockNumber, "leader_term", msg.LeaderTerm, "hash", msg.BlockHash.String())
	f.mu.Unlock()
	return AckCommitMsg{}, nil
}
