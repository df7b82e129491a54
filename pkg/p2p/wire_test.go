package p2p

import (
	"testing"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

func TestEnvelopeRoundTripsThroughGob(t *testing.T) {
	orig := consensus.Envelope{
		Peer:      consensus.PeerID{1, 2, 3},
		Signature: []byte{4, 5, 6},
		Msg: consensus.AppendMsg{
			LeaderTerm:  1,
			BlockNumber: 2,
			BlockHash:   consensus.BlockHash{7, 8},
			Transactions: []consensus.SignedTransaction{
				{Payload: []byte("a=1"), Signature: []byte{9}, Signer: [20]byte{1}},
			},
		},
	}

	raw, err := EncodeEnvelope(orig)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}

	gotMsg, ok := got.Msg.(consensus.AppendMsg)
	if !ok {
		t.Fatalf("decoded Msg is %T, want consensus.AppendMsg", got.Msg)
	}
	if gotMsg.BlockNumber != 2 || gotMsg.LeaderTerm != 1 {
		t.Fatalf("decoded message fields mismatch: %+v", gotMsg)
	}
	if got.Peer != orig.Peer {
		t.Fatalf("decoded Peer = %v, want %v", got.Peer, orig.Peer)
	}
}

func TestViewChangeMessageRoundTrips(t *testing.T) {
	orig := consensus.Envelope{
		Peer: consensus.PeerID{9},
		Msg:  consensus.ViewChangeMsg{NewLeaderTerm: 4},
	}
	raw, err := EncodeEnvelope(orig)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	msg, ok := got.Msg.(consensus.ViewChangeMsg)
	if !ok || msg.NewLeaderTerm != 4 {
		t.Fatalf("got %+v, want ViewChangeMsg{NewLeaderTerm:4}", got.Msg)
	}
}
