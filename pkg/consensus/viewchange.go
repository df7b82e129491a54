// file: pkg/consensus/viewchange.go
package consensus

import (
	"context"

	"github.com/praxis-chain/rpubft/pkg/crypto"
)

// ViewPhase tracks how far a prospective leader_term change has progressed.
type ViewPhase int

const (
	ViewWaiting ViewPhase = iota
	ViewChanging
	ViewChanged
)

// ViewState accumulates ViewChange signatures for one candidate leader_term
// until a supermajority is reached, at which point the RPU elected to lead
// that term broadcasts NewView.
type ViewState struct {
	Phase      ViewPhase
	Signatures map[PeerID]Signature
}

// broadcastViewChange signs a ViewChange for target and delivers it to every
// peer including self: the local delivery is what makes this RPU's own vote
// count towards the supermajority it, or another RPU, is accumulating.
func (f *Follower) broadcastViewChange(ctx context.Context, target LeaderTerm) {
	msg := ViewChangeMsg{NewLeaderTerm: target}
	env := Sign(f.signer, msg)

	if err := f.handleViewChange(ctx, env.Peer, env.Signature, msg); err != nil {
		f.logErr("view_change_self_reject", "term", target, "err", err)
	}

	for _, p := range f.roster.Peers() {
		if p.ID == f.roster.Self() {
			continue
		}
		go func(to PeerID) {
			_, _ = f.net.Send(ctx, to, env)
		}(p.ID)
	}
}

// handleViewChange records peer's vote for msg.NewLeaderTerm. Once a
// supermajority has voted and this RPU is the term's elected leader, it
// assembles and broadcasts NewView. A vote for a term at or below the
// current leaderTerm (including one already installed by NewView) is
// ignored without error. A vote for a term whose view-state is already
// ViewChanged but not yet installed is a regressive phase transition and
// is rejected as ViewPhaseConflict rather than silently accepted.
func (f *Follower) handleViewChange(ctx context.Context, peer PeerID, sig Signature, msg ViewChangeMsg) error {
	f.mu.Lock()

	if msg.NewLeaderTerm <= f.leaderTerm {
		f.mu.Unlock()
		return nil
	}

	vs := f.viewStateLocked(msg.NewLeaderTerm)
	if vs.Phase == ViewChanged {
		f.mu.Unlock()
		return viewPhaseConflict()
	}
	vs.Phase = ViewChanging
	if vs.Signatures == nil {
		vs.Signatures = make(map[PeerID]Signature)
	}
	vs.Signatures[peer] = sig

	amNewLeader := f.roster.LeaderFor(msg.NewLeaderTerm) == f.roster.Self()
	var sigsToBroadcast map[PeerID]Signature
	if amNewLeader && f.roster.Supermajority(len(vs.Signatures)) {
		vs.Phase = ViewChanged
		sigsToBroadcast = make(map[PeerID]Signature, len(vs.Signatures))
		for k, v := range vs.Signatures {
			sigsToBroadcast[k] = v
		}
	}
	f.mu.Unlock()

	if sigsToBroadcast != nil {
		f.broadcastNewView(ctx, msg.NewLeaderTerm, sigsToBroadcast)
	}
	return nil
}

// broadcastNewView signs and delivers NewView proving term is authorized,
// applying it locally first.
func (f *Follower) broadcastNewView(ctx context.Context, term LeaderTerm, sigs map[PeerID]Signature) {
	msg := NewViewMsg{LeaderTerm: term, ViewChangeSignatures: sigs}
	env := Sign(f.signer, msg)

	if err := f.handleNewView(ctx, env.Peer, msg); err != nil {
		f.logErr("new_view_self_reject", "term", term, "err", err)
	}

	for _, p := range f.roster.Peers() {
		if p.ID == f.roster.Self() {
			continue
		}
		go func(to PeerID) {
			_, _ = f.net.Send(ctx, to, env)
		}(p.ID)
	}
}

// handleNewView validates that msg proves a supermajority of the roster
// voted to install msg.LeaderTerm's elected leader, then advances leaderTerm
// and resets every non-committed round so the new leader can redrive all of
// them from Prepare. leaderTerm only ever moves forward: a stale or
// duplicate NewView is accepted without effect, never rejected as an error,
// since it may simply have lost a race with another copy of itself.
func (f *Follower) handleNewView(ctx context.Context, peer PeerID, msg NewViewMsg) error {
	if f.roster.LeaderFor(msg.LeaderTerm) != peer {
		return wrongLeader(peer)
	}
	if !f.roster.Supermajority(len(msg.ViewChangeSignatures)) {
		return notEnoughSignatures()
	}
	voted := ViewChangeMsg{NewLeaderTerm: msg.LeaderTerm}
	voteBytes := voted.bytes()
	for signer, sig := range msg.ViewChangeSignatures {
		if err := f.verifier.IsRPU(signer); err != nil {
			return permissionDenied(err)
		}
		pk, ok := f.roster.PubKey(signer)
		if !ok || !crypto.Verify(pk, sig, voteBytes) {
			return invalidSignature(nil)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.LeaderTerm <= f.leaderTerm {
		return nil
	}
	f.leaderTerm = msg.LeaderTerm
	vs := f.viewStateLocked(msg.LeaderTerm)
	vs.Phase = ViewChanged

	f.window.ResetPending()

	f.logCommit("new_view", "leader_term", msg.LeaderTerm, "leader", peer.String())
	return nil
}
