package worldstate

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/praxis-chain/rpubft/pkg/consensus"
	praxiscrypto "github.com/praxis-chain/rpubft/pkg/crypto"
)

// Verifier implements consensus.TxVerifier: client transactions are
// authenticated via secp256k1 over a Keccak256 digest of the payload, with
// no further structure assumed since a transaction payload is opaque to
// the consensus core.
type Verifier struct {
	roster *consensus.Roster
	// allow, if set, restricts which signer addresses may submit
	// transactions at all; nil means any address is permitted.
	allow map[[20]byte]bool
}

func NewVerifier(roster *consensus.Roster, allow [][20]byte) *Verifier {
	v := &Verifier{roster: roster}
	if allow != nil {
		v.allow = make(map[[20]byte]bool, len(allow))
		for _, a := range allow {
			v.allow[a] = true
		}
	}
	return v
}

func (v *Verifier) VerifySignature(tx consensus.SignedTransaction) error {
	hash := ethcrypto.Keccak256(tx.Payload)
	if !praxiscrypto.VerifySignature(tx.Signer, hash, tx.Signature) {
		return fmt.Errorf("worldstate: invalid transaction signature for %x", tx.Signer)
	}
	return nil
}

func (v *Verifier) CheckPermission(signer [20]byte, _ []byte) error {
	if v.allow == nil {
		return nil
	}
	if !v.allow[signer] {
		return fmt.Errorf("worldstate: signer %x is not permitted to submit transactions", signer)
	}
	return nil
}

func (v *Verifier) IsRPU(id consensus.PeerID) error {
	if !v.roster.Contains(id) {
		return fmt.Errorf("worldstate: %s is not a roster member", id)
	}
	return nil
}

var _ consensus.TxVerifier = (*Verifier)(nil)
