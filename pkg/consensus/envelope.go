// file: pkg/consensus/envelope.go
package consensus

import "github.com/praxis-chain/rpubft/pkg/crypto"

// Envelope is the signed wrapper every consensus message travels in: a
// peer identity plus a BLS signature over the message's canonical bytes.
// Handlers verify the envelope before ever looking at the message itself.
type Envelope struct {
	Peer      PeerID
	Signature Signature
	Msg       Message
}

// Sign wraps msg in an Envelope signed by signer.
func Sign(signer *crypto.BLSSigner, msg Message) Envelope {
	return Envelope{
		Peer:      signer.PeerID(),
		Signature: signer.Sign(msg.bytes()),
		Msg:       msg,
	}
}

// Verify checks that env.Peer is a member of roster and that env.Signature
// is a valid BLS signature over env.Msg's canonical bytes under that peer's
// public key. This is the only place envelope authenticity is decided;
// every message handler calls it before touching follower state.
func Verify(roster *Roster, env Envelope) error {
	if !roster.Contains(env.Peer) {
		return invalidPeer(env.Peer)
	}
	pk, ok := roster.PubKey(env.Peer)
	if !ok {
		return invalidPeer(env.Peer)
	}
	if !crypto.Verify(pk, env.Signature, env.Msg.bytes()) {
		return invalidSignature(nil)
	}
	return nil
}
