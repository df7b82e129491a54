// Package worldstate materializes the deterministic key-value view derived
// from the committed block log. Every RPU applies the same committed
// transactions in the same order and must arrive at the same state; since
// payloads are opaque client transactions, the materializer here is a
// generic last-writer-wins KV store rather than any domain-specific
// execution engine.
package worldstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

// KVStore is a deterministic materializer: each transaction payload is
// "key=value" and is applied as a last-writer-wins put, in the block's
// transaction order. A malformed payload is skipped, not rejected, since
// well-formedness was already the leader's and the Append validators'
// responsibility before the block was ever committed; consensus itself does
// not interpret transaction payloads.
type KVStore struct {
	mu      sync.Mutex
	path    string
	data    map[string]string
	applied consensus.BlockNumber
}

func New(path string) (*KVStore, error) {
	s := &KVStore{path: path, data: make(map[string]string)}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if raw, err := os.ReadFile(path); err == nil {
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		s.data = snap.Data
		s.applied = snap.Applied
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

type snapshot struct {
	Applied consensus.BlockNumber
	Data    map[string]string
}

// Apply implements consensus.WorldState.
func (s *KVStore) Apply(b consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Body.Height <= s.applied && s.applied != 0 {
		return nil
	}
	for _, tx := range b.Body.Transactions {
		k, v, ok := splitKV(tx.Payload)
		if !ok {
			continue
		}
		s.data[k] = v
	}
	s.applied = b.Body.Height
	return nil
}

// Save implements consensus.WorldState, persisting a snapshot atomically via
// write-then-rename so a crash mid-write cannot corrupt the last good state.
func (s *KVStore) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	snap := snapshot{Applied: s.applied, Data: make(map[string]string, len(s.data))}
	for k, v := range s.data {
		snap.Data[k] = v
	}
	s.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *KVStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// StateRoot is a content hash of the current KV snapshot, useful for a
// status endpoint that wants to compare state across RPUs without dumping
// the whole store.
func (s *KVStore) StateRoot() [64]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _ := json.Marshal(s.data)
	return blake2b.Sum512(raw)
}

func splitKV(payload []byte) (string, string, bool) {
	for i, c := range payload {
		if c == '=' {
			return string(payload[:i]), string(payload[i+1:]), true
		}
	}
	return "", "", false
}

var _ consensus.WorldState = (*KVStore)(nil)
