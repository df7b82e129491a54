// file: pkg/consensus/interfaces.go
package consensus

import "context"

// Network delivers a signed envelope to a single peer and returns that
// peer's synchronous reply, mirroring the RPU-to-RPU RPC transport this
// core is built on top of: a bidirectional, peer-authenticated channel
// where every request gets exactly one response or an error.
type Network interface {
	Send(ctx context.Context, to PeerID, env Envelope) (Envelope, error)
}

// InboundHandler is what a Network implementation calls for every envelope
// it receives addressed to this peer, whose return value becomes the RPC
// response sent back to the caller.
type InboundHandler func(ctx context.Context, env Envelope) (*Envelope, error)

// TxVerifier authenticates client transactions and consensus peers. It is
// an external collaborator: the consensus core never implements signature
// schemes itself, only calls out to this narrow interface.
type TxVerifier interface {
	// VerifySignature checks a client's signature over its own transaction
	// payload.
	VerifySignature(tx SignedTransaction) error
	// CheckPermission checks that signer is allowed to submit payload.
	CheckPermission(signer [20]byte, payload []byte) error
	// IsRPU checks that id is a known consensus peer, used to validate the
	// signers of AckPrepare/AckAppend/ViewChange signature maps.
	IsRPU(id PeerID) error
}

// BlockStore durably persists the committed chain. Append must be
// crash-atomic per block.
type BlockStore interface {
	Append(b Block) error
	LastHeight() BlockNumber
	LastHash() BlockHash
}

// WorldState is the deterministic materialized view derived from the
// committed block log.
type WorldState interface {
	Apply(b Block) error
	Save() error
}
