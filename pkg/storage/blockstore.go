package storage

import (
	"sync"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

// InMemoryBlockStore is a BlockStore backed by a plain map, used in tests
// and in devnets where durability across restarts does not matter.
type InMemoryBlockStore struct {
	mu     sync.Mutex
	blocks map[consensus.BlockNumber]consensus.Block
	last   consensus.BlockNumber
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{blocks: make(map[consensus.BlockNumber]consensus.Block)}
}

func (s *InMemoryBlockStore) Append(b consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Body.Height] = b
	if b.Body.Height > s.last {
		s.last = b.Body.Height
	}
	return nil
}

func (s *InMemoryBlockStore) Get(n consensus.BlockNumber) (consensus.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[n]
	return b, ok
}

func (s *InMemoryBlockStore) LastHeight() consensus.BlockNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *InMemoryBlockStore) LastHash() consensus.BlockHash {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[s.last]
	if !ok {
		return consensus.BlockHash{}
	}
	return b.Hash()
}

var _ consensus.BlockStore = (*InMemoryBlockStore)(nil)
