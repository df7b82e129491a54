// file: pkg/consensus/encode.go
package consensus

import "encoding/binary"

// compactSize is a variable-length unsigned integer, used to length-prefix
// byte slices and repeated fields in the canonical Body encoding so that the
// encoding of a Body is deterministic across peers and across Go versions.
type compactSize uint64

func (c compactSize) encode() []byte {
	switch {
	case c < 0xfd:
		return []byte{byte(c)}
	case c <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(c))
		return buf
	case c <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(c))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], uint64(c))
		return buf
	}
}

func appendBytes(out []byte, b []byte) []byte {
	out = append(out, compactSize(len(b)).encode()...)
	return append(out, b...)
}

func signedTxBytes(tx SignedTransaction) []byte {
	out := make([]byte, 0, len(tx.Payload)+len(tx.Signature)+20+18)
	out = appendBytes(out, tx.Payload)
	out = appendBytes(out, tx.Signature)
	out = append(out, tx.Signer[:]...)
	return out
}

// encodeBody produces the canonical byte representation of a Body: the
// leader term, height and previous block hash as fixed-width little-endian
// fields, followed by the transaction count and each transaction's
// length-prefixed encoding, in order. Encoding is order-sensitive and
// unambiguous so two peers that agree on a Body always agree on its hash.
func encodeBody(b Body) []byte {
	out := make([]byte, 0, 8+8+64+9+64*len(b.Transactions))

	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], uint64(b.LeaderTerm))
	out = append(out, tmp8[:]...)

	binary.LittleEndian.PutUint64(tmp8[:], uint64(b.Height))
	out = append(out, tmp8[:]...)

	out = append(out, b.PrevBlockHash[:]...)

	out = append(out, compactSize(len(b.Transactions)).encode()...)
	for _, tx := range b.Transactions {
		out = append(out, signedTxBytes(tx)...)
	}
	return out
}
