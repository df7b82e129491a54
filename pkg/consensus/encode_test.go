package consensus

import "testing"

func TestBodyHashDeterministic(t *testing.T) {
	b := Body{
		LeaderTerm:    3,
		Height:        7,
		PrevBlockHash: BlockHash{9, 9, 9},
		Transactions: []SignedTransaction{
			{Payload: []byte("a=1"), Signature: []byte{1, 2}, Signer: [20]byte{1}},
			{Payload: []byte("b=2"), Signature: []byte{3, 4}, Signer: [20]byte{2}},
		},
	}
	h1 := b.Hash()
	h2 := b.Hash()
	if h1 != h2 {
		t.Fatal("Body.Hash() is not deterministic across calls")
	}

	other := b
	other.Transactions = append([]SignedTransaction{}, b.Transactions...)
	other.Transactions[0].Payload = []byte("a=2")
	if other.Hash() == h1 {
		t.Fatal("changing a transaction payload must change the body hash")
	}
}

func TestBodyHashOrderSensitive(t *testing.T) {
	tx1 := SignedTransaction{Payload: []byte("a=1")}
	tx2 := SignedTransaction{Payload: []byte("b=2")}

	b1 := Body{Transactions: []SignedTransaction{tx1, tx2}}
	b2 := Body{Transactions: []SignedTransaction{tx2, tx1}}

	if b1.Hash() == b2.Hash() {
		t.Fatal("transaction order must affect the body hash")
	}
}

func TestGenesisBlockIsHeightZero(t *testing.T) {
	g := GenesisBlock()
	if g.Body.Height != 0 {
		t.Errorf("genesis height = %d, want 0", g.Body.Height)
	}
	if g.Body.PrevBlockHash != (BlockHash{}) {
		t.Errorf("genesis PrevBlockHash must be zero")
	}
}
