package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praxis-chain/rpubft/pkg/crypto"
)

// fakeAckNetwork plays a cooperative remote peer: every Prepare/Append/Commit
// it receives is acknowledged immediately and signed by the addressed peer's
// own key, without running that peer's actual follower state machine. It
// lets leader_test.go exercise broadcastAndCollect's quorum-counting logic
// in isolation from the full multi-follower integration path already
// covered by pkg/p2p/integration_test.go.
type fakeAckNetwork struct {
	signers map[PeerID]*crypto.BLSSigner
	refuse  map[PeerID]bool
}

func (n *fakeAckNetwork) Send(ctx context.Context, to PeerID, env Envelope) (Envelope, error) {
	if n.refuse[to] {
		return Envelope{}, errors.New("fakeAckNetwork: peer refused")
	}
	signer, ok := n.signers[to]
	if !ok {
		return Envelope{}, errors.New("fakeAckNetwork: unknown peer")
	}
	var reply Message
	switch m := env.Msg.(type) {
	case PrepareMsg:
		reply = AckPrepareMsg{LeaderTerm: m.LeaderTerm, BlockNumber: m.BlockNumber, BlockHash: m.BlockHash}
	case AppendMsg:
		reply = AckAppendMsg{LeaderTerm: m.LeaderTerm, BlockNumber: m.BlockNumber, BlockHash: m.BlockHash}
	case CommitMsg:
		reply = AckCommitMsg{}
	default:
		return Envelope{}, errors.New("fakeAckNetwork: unsupported message kind")
	}
	return Sign(signer, reply), nil
}

func signersByPeerID(signers []*crypto.BLSSigner, peers []Peer) map[PeerID]*crypto.BLSSigner {
	out := make(map[PeerID]*crypto.BLSSigner, len(peers))
	for i, p := range peers {
		out[p.ID] = signers[i]
	}
	return out
}

// When every peer (including this RPU, via self-delivery) acks, collection
// must return a supermajority of signatures well before any timeout.
func TestBroadcastAndCollectReturnsSupermajoritySignatures(t *testing.T) {
	f, signers, peers := newTestFollower(t, 4, 4)
	roster := f.roster
	f.leaderTerm = termWhereLeaderIs(roster, roster.Self())

	net := &fakeAckNetwork{signers: signersByPeerID(signers, peers)}
	f.net = net

	l := NewLeader(f, LeaderConfig{PhaseTimeout: time.Second})
	msg := PrepareMsg{LeaderTerm: f.leaderTerm, BlockNumber: 1, BlockHash: BlockHash{1}}

	sigs, err := l.broadcastAndCollect(context.Background(), msg)
	if err != nil {
		t.Fatalf("broadcastAndCollect: %v", err)
	}
	if !roster.Supermajority(len(sigs)) {
		t.Fatalf("collected %d signatures, want at least quorum %d", len(sigs), roster.Quorum())
	}
}

// When too few peers ack to reach quorum, collection must fail once every
// outstanding request has settled, rather than hang or report success.
func TestBroadcastAndCollectFailsWithoutQuorum(t *testing.T) {
	f, signers, peers := newTestFollower(t, 4, 4)
	roster := f.roster
	f.leaderTerm = termWhereLeaderIs(roster, roster.Self())

	refuse := make(map[PeerID]bool)
	remoteSeen := 0
	for _, p := range peers {
		if p.ID == roster.Self() {
			continue
		}
		remoteSeen++
		if remoteSeen > 1 {
			refuse[p.ID] = true
		}
	}
	net := &fakeAckNetwork{signers: signersByPeerID(signers, peers), refuse: refuse}
	f.net = net

	l := NewLeader(f, LeaderConfig{PhaseTimeout: 200 * time.Millisecond})
	msg := PrepareMsg{LeaderTerm: f.leaderTerm, BlockNumber: 1, BlockHash: BlockHash{2}}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	sigs, err := l.broadcastAndCollect(ctx, msg)
	if err == nil {
		t.Fatalf("expected an error when fewer than quorum peers ack, got %d signatures", len(sigs))
	}
}
