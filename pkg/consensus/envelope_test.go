package consensus

import "testing"

func TestEnvelopeVerifyAcceptsValidSignature(t *testing.T) {
	signers, peers := testPeers(t, 4)
	r := NewRoster(peers[0].ID, peers)

	msg := PrepareMsg{LeaderTerm: 1, BlockNumber: 1, BlockHash: BlockHash{1, 2, 3}}
	env := Sign(signers[0], msg)

	if err := Verify(r, env); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestEnvelopeVerifyRejectsTamperedMessage(t *testing.T) {
	signers, peers := testPeers(t, 4)
	r := NewRoster(peers[0].ID, peers)

	env := Sign(signers[0], PrepareMsg{LeaderTerm: 1, BlockNumber: 1, BlockHash: BlockHash{1}})
	env.Msg = PrepareMsg{LeaderTerm: 1, BlockNumber: 1, BlockHash: BlockHash{2}}

	if err := Verify(r, env); err == nil {
		t.Fatal("Verify() = nil for a tampered message, want an error")
	}
}

func TestEnvelopeVerifyRejectsUnknownPeer(t *testing.T) {
	outsider, _ := testPeers(t, 1)
	_, peers := testPeers(t, 4)
	r := NewRoster(peers[0].ID, peers)

	env := Sign(outsider[0], PrepareMsg{LeaderTerm: 1, BlockNumber: 1})
	if err := Verify(r, env); err == nil {
		t.Fatal("Verify() = nil for a non-roster signer, want an error")
	}
}
