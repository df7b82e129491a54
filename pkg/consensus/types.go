// file: pkg/consensus/types.go
package consensus

import "time"

// PeerID identifies an RPU (replica processing unit) by its BLS public key bytes.
type PeerID [PeerIDSize]byte

const PeerIDSize = 48 // compressed G1 point, see pkg/crypto.BLSPubKey

func (p PeerID) String() string { return hexString(p[:]) }

// Peer is a roster entry: an RPU's identity and network address.
type Peer struct {
	ID   PeerID
	Addr string
}

// BlockNumber is the height of a block in the committed chain, genesis = 0.
type BlockNumber uint64

// LeaderTerm increases by one on every successful view-change, never decreases.
type LeaderTerm uint64

// BlockHash is a Blake2b-512 digest of a canonically encoded Body.
type BlockHash [64]byte

func (h BlockHash) String() string { return hexString(h[:]) }

// Signature is a detached BLS signature over a message.
type Signature []byte

// SignedTransaction is a client transaction together with the client's
// signature over its payload and the signer's address.
type SignedTransaction struct {
	Payload   []byte
	Signature []byte
	Signer    [20]byte // secp256k1-derived address, see pkg/crypto.Signer
}

// Equal reports whether two signed transactions carry the same signer,
// payload and signature, used by the queue to prune committed transactions.
func (t SignedTransaction) Equal(o SignedTransaction) bool {
	return t.Signer == o.Signer &&
		bytesEqual(t.Payload, o.Payload) &&
		bytesEqual(t.Signature, o.Signature)
}

// Body is the hashed, replicated content of a block.
type Body struct {
	LeaderTerm    LeaderTerm
	Height        BlockNumber
	PrevBlockHash BlockHash
	Transactions  []SignedTransaction
}

// Hash computes the Body's BlockHash: canonical-encode then Blake2b-512.
func (b Body) Hash() BlockHash { return hashBody(b) }

// Block is a committed Body plus the supermajority of AckAppend signatures
// that authorized its commit.
type Block struct {
	Body       Body
	Signatures map[PeerID]Signature
}

func (b Block) Hash() BlockHash { return b.Body.Hash() }

func GenesisBlock() Block {
	return Block{Body: Body{LeaderTerm: 0, Height: 0, PrevBlockHash: BlockHash{}}}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

// arrivalClock is how the queue timestamps transactions for the censorship
// watchdog; pulled out so tests can inject a fake clock.
type arrivalClock interface {
	Now() time.Time
}
