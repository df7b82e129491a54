// file: pkg/consensus/hash.go
package consensus

import "golang.org/x/crypto/blake2b"

// hashBody hashes the canonical encoding of a Body with Blake2b-512.
func hashBody(b Body) BlockHash {
	return BlockHash(blake2b.Sum512(encodeBody(b)))
}
