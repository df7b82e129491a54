package p2p

import (
	"bytes"
	"encoding/gob"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

func init() {
	gob.Register(consensus.PrepareMsg{})
	gob.Register(consensus.AckPrepareMsg{})
	gob.Register(consensus.AppendMsg{})
	gob.Register(consensus.AckAppendMsg{})
	gob.Register(consensus.CommitMsg{})
	gob.Register(consensus.AckCommitMsg{})
	gob.Register(consensus.ViewChangeMsg{})
	gob.Register(consensus.NewViewMsg{})
}

// EncodeEnvelope serializes env, including its concrete Message variant, for
// the wire. Every Message implementation is gob-registered above so the
// interface field round-trips without a hand-written tag byte.
func EncodeEnvelope(env consensus.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeEnvelope(b []byte) (consensus.Envelope, error) {
	var env consensus.Envelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return consensus.Envelope{}, err
	}
	return env, nil
}
