// file: pkg/consensus/roster.go
package consensus

import (
	"sort"

	"github.com/praxis-chain/rpubft/pkg/crypto"
)

// Roster is the fixed set of RPUs participating in consensus. Membership is
// static for the lifetime of a network; adding or removing peers requires a
// new roster and genesis, not a protocol message.
type Roster struct {
	self  PeerID
	peers []Peer
	byID  map[PeerID]Peer
	order []PeerID // peers sorted by PeerID, used for leader rotation
}

// NewRoster builds a roster from the given peers. Panics if fewer than four
// peers are given or self is not among them: with n < 4 no integer quorum
// tolerates even a single Byzantine peer.
func NewRoster(self PeerID, peers []Peer) *Roster {
	if len(peers) < 4 {
		panic("consensus: cannot reach quorum with fewer than four peers")
	}
	byID := make(map[PeerID]Peer, len(peers))
	order := make([]PeerID, 0, len(peers))
	found := false
	for _, p := range peers {
		byID[p.ID] = p
		order = append(order, p.ID)
		if p.ID == self {
			found = true
		}
	}
	if !found {
		panic("consensus: self is not part of the peer roster")
	}
	sort.Slice(order, func(i, j int) bool {
		return string(order[i][:]) < string(order[j][:])
	})
	return &Roster{self: self, peers: peers, byID: byID, order: order}
}

func (r *Roster) Self() PeerID { return r.self }

func (r *Roster) Len() int { return len(r.peers) }

func (r *Roster) Contains(id PeerID) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Roster) Peer(id PeerID) (Peer, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Roster) Peers() []Peer {
	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

// Supermajority reports whether n signatures meet quorum q = floor(2N/3)+1,
// where N is the roster size.
func (r *Roster) Supermajority(n int) bool {
	return n >= r.Quorum()
}

func (r *Roster) Quorum() int {
	return len(r.peers)*2/3 + 1
}

// LeaderFor derives the current leader by rotating through the
// PeerID-sorted roster: peers_sorted[term mod n]. This resolves the open
// question of leader self-election: rather than a hard-coded leader id, the
// deterministic rotation already required for view-change is reused so
// every RPU can compute the leader for any term without a side channel.
func (r *Roster) LeaderFor(term LeaderTerm) PeerID {
	idx := int(uint64(term) % uint64(len(r.order)))
	return r.order[idx]
}

// PubKey recovers the BLS public key of a roster member from its PeerID,
// which is itself the marshaled public key.
func (r *Roster) PubKey(id PeerID) (*crypto.BLSPubKey, bool) {
	if !r.Contains(id) {
		return nil, false
	}
	pk, err := crypto.UnmarshalPubkey([crypto.PeerIDSize]byte(id))
	if err != nil {
		return nil, false
	}
	return pk, true
}
