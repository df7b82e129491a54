// file: pkg/crypto/bls.go
package crypto

import (
	"crypto/sha256"

	bls "github.com/cloudflare/circl/sign/bls"
)

// scheme is BLS12-381 with public keys in G1 and signatures in G2: the
// smaller element (48 bytes) is what gets gossiped and compared on every
// message, the larger one (96 bytes) only travels once per signed message.
type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]
type BLSSignature = []byte

// PeerIDSize is the size in bytes of a marshaled BLSPubKey, and therefore of
// a consensus.PeerID.
const PeerIDSize = 48

// BLSSigner holds an RPU's long-term identity key, used to sign and verify
// consensus envelope messages (Prepare/Append/Commit/ViewChange/NewView and
// their Acks).
type BLSSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewBLSSignerFromSeed derives a signer deterministically from seed, for
// tests and devnets where reproducible peer identities are convenient. The
// seed may be of any length: it is hashed with SHA-256 into the 32 bytes of
// key material that BLS key generation requires.
func NewBLSSignerFromSeed(seed []byte) *BLSSigner {
	ikm := sha256.Sum256(seed)
	sk, err := bls.KeyGen[scheme](ikm[:], nil, nil)
	if err != nil {
		panic(err)
	}
	pk := sk.PublicKey()
	return &BLSSigner{sk: sk, pk: pk}
}

func (s *BLSSigner) Pubkey() *BLSPubKey { return s.pk }

// PeerID returns the marshaled public key, used as the wire identity
// (consensus.PeerID) for this RPU.
func (s *BLSSigner) PeerID() [PeerIDSize]byte {
	return MarshalPubkey(s.pk)
}

func (s *BLSSigner) Sign(msg []byte) []byte {
	return bls.Sign(s.sk, msg)
}

// MarshalPubkey serializes a BLS public key to its fixed-size compressed
// G1 representation.
func MarshalPubkey(pk *BLSPubKey) [PeerIDSize]byte {
	b, err := pk.MarshalBinary()
	if err != nil {
		panic(err)
	}
	var out [PeerIDSize]byte
	copy(out[:], b)
	return out
}

// UnmarshalPubkey parses a compressed G1 public key previously produced by
// MarshalPubkey.
func UnmarshalPubkey(b [PeerIDSize]byte) (*BLSPubKey, error) {
	pk := new(BLSPubKey)
	if err := pk.UnmarshalBinary(b[:]); err != nil {
		return nil, err
	}
	return pk, nil
}

func Verify(pk *BLSPubKey, sigBytes, msg []byte) bool {
	return bls.Verify(pk, msg, bls.Signature(sigBytes))
}

// Aggregate combines signatures over the same message into one, used by the
// leader when batching ACK signatures is worthwhile on the wire. PRaftBFT's
// own Append/Commit messages carry signatures individually (map[PeerID]Signature)
// rather than an aggregate, so this is kept for collaborators (e.g. batched
// gossip transport) that want it, not for the envelope format itself.
func Aggregate(sigBytesList [][]byte) []byte {
	sigs := make([]bls.Signature, 0, len(sigBytesList))
	for _, sb := range sigBytesList {
		if len(sb) == 0 {
			continue
		}
		sigs = append(sigs, bls.Signature(sb))
	}
	agg, err := bls.Aggregate(bls.G1{}, sigs)
	if err != nil {
		return nil
	}
	return agg
}

func VerifyAggregateSameMsg(pks []*BLSPubKey, msg []byte, aggSig []byte) bool {
	return bls.VerifyAggregate(pks, [][]byte{msg}, bls.Signature(aggSig))
}
