// file: pkg/consensus/messages.go
package consensus

import "encoding/binary"

// MessageKind tags the wire variant of a Message so the canonical signing
// bytes of different message kinds never collide even when their fields
// happen to line up.
type MessageKind byte

const (
	KindPrepare MessageKind = iota
	KindAckPrepare
	KindAppend
	KindAckAppend
	KindCommit
	KindAckCommit
	KindViewChange
	KindNewView
)

// Message is anything that can travel inside a signed Envelope. bytes
// returns the canonical encoding that gets signed and verified; it never
// includes the sender's own signature.
type Message interface {
	Kind() MessageKind
	bytes() []byte
}

func putTerm(out []byte, t LeaderTerm) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(t))
	return append(out, tmp[:]...)
}

func putBlockNumber(out []byte, n BlockNumber) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(n))
	return append(out, tmp[:]...)
}

func putSignatureMap(out []byte, m map[PeerID]Signature) []byte {
	out = append(out, compactSize(len(m)).encode()...)
	ids := make([]PeerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortPeerIDs(ids)
	for _, id := range ids {
		out = append(out, id[:]...)
		out = appendBytes(out, m[id])
	}
	return out
}

func sortPeerIDs(ids []PeerID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && string(ids[j-1][:]) > string(ids[j][:]); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// PrepareMsg is the leader's announcement of the block hash it intends to
// propose for (LeaderTerm, BlockNumber). It precedes sending the actual
// transaction data in AppendMsg.
type PrepareMsg struct {
	LeaderTerm  LeaderTerm
	BlockNumber BlockNumber
	BlockHash   BlockHash
}

func (m PrepareMsg) Kind() MessageKind { return KindPrepare }
func (m PrepareMsg) bytes() []byte {
	out := []byte{byte(KindPrepare)}
	out = putTerm(out, m.LeaderTerm)
	out = putBlockNumber(out, m.BlockNumber)
	return append(out, m.BlockHash[:]...)
}

// AckPrepareMsg is a follower's acknowledgement of a Prepare; the leader
// collects a supermajority of these before it may Append.
type AckPrepareMsg struct {
	LeaderTerm  LeaderTerm
	BlockNumber BlockNumber
	BlockHash   BlockHash
}

func (m AckPrepareMsg) Kind() MessageKind { return KindAckPrepare }
func (m AckPrepareMsg) bytes() []byte {
	out := []byte{byte(KindAckPrepare)}
	out = putTerm(out, m.LeaderTerm)
	out = putBlockNumber(out, m.BlockNumber)
	return append(out, m.BlockHash[:]...)
}

// AppendMsg carries the actual block body (as signed transactions) along
// with the supermajority of AckPrepare signatures that authorize it.
type AppendMsg struct {
	LeaderTerm           LeaderTerm
	BlockNumber          BlockNumber
	BlockHash            BlockHash
	AckPrepareSignatures map[PeerID]Signature
	Transactions         []SignedTransaction
}

func (m AppendMsg) Kind() MessageKind { return KindAppend }
func (m AppendMsg) bytes() []byte {
	out := []byte{byte(KindAppend)}
	out = putTerm(out, m.LeaderTerm)
	out = putBlockNumber(out, m.BlockNumber)
	out = append(out, m.BlockHash[:]...)
	out = putSignatureMap(out, m.AckPrepareSignatures)
	out = append(out, compactSize(len(m.Transactions)).encode()...)
	for _, tx := range m.Transactions {
		out = append(out, signedTxBytes(tx)...)
	}
	return out
}

// AckAppendMsg is a follower's acknowledgement of an Append; a supermajority
// of these authorizes the leader's Commit.
type AckAppendMsg struct {
	LeaderTerm  LeaderTerm
	BlockNumber BlockNumber
	BlockHash   BlockHash
}

func (m AckAppendMsg) Kind() MessageKind { return KindAckAppend }
func (m AckAppendMsg) bytes() []byte {
	out := []byte{byte(KindAckAppend)}
	out = putTerm(out, m.LeaderTerm)
	out = putBlockNumber(out, m.BlockNumber)
	return append(out, m.BlockHash[:]...)
}

// CommitMsg tells followers the block is final, carrying the AckAppend
// signatures as proof.
type CommitMsg struct {
	LeaderTerm          LeaderTerm
	BlockNumber         BlockNumber
	BlockHash           BlockHash
	AckAppendSignatures map[PeerID]Signature
}

func (m CommitMsg) Kind() MessageKind { return KindCommit }
func (m CommitMsg) bytes() []byte {
	out := []byte{byte(KindCommit)}
	out = putTerm(out, m.LeaderTerm)
	out = putBlockNumber(out, m.BlockNumber)
	out = append(out, m.BlockHash[:]...)
	out = putSignatureMap(out, m.AckAppendSignatures)
	return out
}

// AckCommitMsg is the terminal acknowledgement of a Commit; it carries no
// fields because its meaning is entirely the envelope's (peer, signature).
type AckCommitMsg struct{}

func (m AckCommitMsg) Kind() MessageKind { return KindAckCommit }
func (m AckCommitMsg) bytes() []byte     { return []byte{byte(KindAckCommit)} }

// ViewChangeMsg is broadcast by any RPU that suspects the current leader of
// term NewLeaderTerm-1 is faulty or censoring, requesting a move to
// NewLeaderTerm.
type ViewChangeMsg struct {
	NewLeaderTerm LeaderTerm
}

func (m ViewChangeMsg) Kind() MessageKind { return KindViewChange }
func (m ViewChangeMsg) bytes() []byte {
	out := []byte{byte(KindViewChange)}
	return putTerm(out, m.NewLeaderTerm)
}

// NewViewMsg is broadcast by the new leader once it has collected a
// supermajority of ViewChange signatures for LeaderTerm, proving the
// view-change is authorized.
type NewViewMsg struct {
	LeaderTerm           LeaderTerm
	ViewChangeSignatures map[PeerID]Signature
}

func (m NewViewMsg) Kind() MessageKind { return KindNewView }
func (m NewViewMsg) bytes() []byte {
	out := []byte{byte(KindNewView)}
	out = putTerm(out, m.LeaderTerm)
	return putSignatureMap(out, m.ViewChangeSignatures)
}
