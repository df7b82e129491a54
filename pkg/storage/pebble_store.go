package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

// PebbleStore durably persists the committed block log in a pebble LSM tree,
// fsyncing every append: a block is not considered stored until it can
// survive a crash.
type PebbleStore struct {
	db   *pebble.DB
	last consensus.BlockNumber
	hash consensus.BlockHash
}

// keys: b:<8-byte big-endian height> -> gob-encoded Block; last -> 8-byte height
func kBlockHeight(n consensus.BlockNumber) []byte { return append([]byte("b:"), heightKey(n)...) }

func kLast() []byte { return []byte("last") }

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	s := &PebbleStore{db: db}
	if last, ok := s.readLast(); ok {
		if b, ok := s.Get(last); ok {
			s.last = last
			s.hash = b.Hash()
		}
	}
	return s, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) readLast() (consensus.BlockNumber, bool) {
	val, closer, err := s.db.Get(kLast())
	if err != nil {
		return 0, false
	}
	defer closer.Close()
	var n consensus.BlockNumber
	for _, c := range val {
		n = n<<8 | consensus.BlockNumber(c)
	}
	return n, true
}

// Append persists b and advances the durable last-height marker in the same
// synced batch, so a crash between the two is impossible.
func (s *PebbleStore) Append(b consensus.Block) error {
	val, err := encodeGob(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	batch := s.db.NewBatch()
	if err := batch.Set(kBlockHeight(b.Body.Height), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kLast(), heightKey(b.Body.Height), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit block batch: %w", err)
	}
	s.last = b.Body.Height
	s.hash = b.Hash()
	return nil
}

func (s *PebbleStore) Get(n consensus.BlockNumber) (consensus.Block, bool) {
	val, closer, err := s.db.Get(kBlockHeight(n))
	if err != nil {
		return consensus.Block{}, false
	}
	defer closer.Close()
	var out consensus.Block
	if err := decodeGob(val, &out); err != nil {
		return consensus.Block{}, false
	}
	return out, true
}

func (s *PebbleStore) LastHeight() consensus.BlockNumber { return s.last }

func (s *PebbleStore) LastHash() consensus.BlockHash { return s.hash }

var _ consensus.BlockStore = (*PebbleStore)(nil)
