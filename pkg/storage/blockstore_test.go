package storage

import (
	"testing"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

func TestInMemoryBlockStoreAppendTracksLast(t *testing.T) {
	s := NewInMemoryBlockStore()

	b1 := consensus.Block{Body: consensus.Body{Height: 1}}
	b2 := consensus.Block{Body: consensus.Body{Height: 2}}

	if err := s.Append(b1); err != nil {
		t.Fatalf("Append(b1): %v", err)
	}
	if err := s.Append(b2); err != nil {
		t.Fatalf("Append(b2): %v", err)
	}

	if h := s.LastHeight(); h != 2 {
		t.Fatalf("LastHeight() = %d, want 2", h)
	}
	if got := s.LastHash(); got != b2.Hash() {
		t.Fatalf("LastHash() mismatch")
	}

	got, ok := s.Get(1)
	if !ok || got.Body.Height != 1 {
		t.Fatalf("Get(1) = (%+v, %v), want height 1", got, ok)
	}
}

func TestGobCodecRoundTrip(t *testing.T) {
	block := consensus.Block{
		Body: consensus.Body{
			Height: 3,
			Transactions: []consensus.SignedTransaction{
				{Payload: []byte("a=1"), Signer: [20]byte{1}},
			},
		},
		Signatures: map[consensus.PeerID]consensus.Signature{
			{1}: []byte{1, 2, 3},
		},
	}

	raw, err := encodeGob(block)
	if err != nil {
		t.Fatalf("encodeGob: %v", err)
	}
	var out consensus.Block
	if err := decodeGob(raw, &out); err != nil {
		t.Fatalf("decodeGob: %v", err)
	}
	if out.Body.Height != 3 || len(out.Body.Transactions) != 1 {
		t.Fatalf("decoded block mismatch: %+v", out)
	}
}

func TestHeightKeyOrdersLexicographically(t *testing.T) {
	k1 := heightKey(1)
	k2 := heightKey(2)
	k256 := heightKey(256)

	if string(k1) >= string(k2) {
		t.Fatal("heightKey(1) must sort before heightKey(2)")
	}
	if string(k2) >= string(k256) {
		t.Fatal("heightKey(2) must sort before heightKey(256)")
	}
}
