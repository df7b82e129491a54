package params

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

// Node holds everything a running RPU needs to boot: its identity, the
// roster it participates in, and the protocol tunables governing block
// production, the round-state window, and the censorship watchdog.
type Node struct {
	DataDir    string
	ListenAddr string
	StatusAddr string

	Peers []consensus.Peer
	Self  consensus.PeerID

	RoundWindow       int
	MaxTxPerBlock     int
	PhaseTimeout      time.Duration
	CensorshipTimeout time.Duration
}

func Default() Node {
	return Node{
		DataDir:           "./data",
		ListenAddr:        "/ip4/0.0.0.0/tcp/4001",
		StatusAddr:        ":8080",
		RoundWindow:       16,
		MaxTxPerBlock:     500,
		PhaseTimeout:      4 * time.Second,
		CensorshipTimeout: 10 * time.Second,
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
//
// RPU_ID, if set, is parsed into Node.Self as this process's hex-encoded
// roster identity (cmd/node does not read Node.Self; it takes its identity
// from the RPU_SEED-derived BLS key); RPU_PEERS is a comma-separated list
// of "<hex-pubkey>@<multiaddr>" entries forming the fixed roster.
func LoadFromEnv(envPath string) (Node, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
	if v := os.Getenv("ROUND_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RoundWindow = n
		}
	}
	if v := os.Getenv("MAX_TX_PER_BLOCK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTxPerBlock = n
		}
	}
	if v := os.Getenv("PHASE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.PhaseTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CENSORSHIP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CensorshipTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if peersEnv := os.Getenv("RPU_PEERS"); peersEnv != "" {
		peers, err := parsePeers(peersEnv)
		if err != nil {
			return cfg, fmt.Errorf("params: RPU_PEERS: %w", err)
		}
		cfg.Peers = peers
	}

	if v := os.Getenv("RPU_ID"); v != "" {
		id, err := parsePeerID(v)
		if err != nil {
			return cfg, fmt.Errorf("params: RPU_ID: %w", err)
		}
		cfg.Self = id
	}

	return cfg, nil
}

// parsePeers parses a comma-separated "<hex-pubkey>@<multiaddr>,..." list
// into roster entries.
func parsePeers(s string) ([]consensus.Peer, error) {
	entries := strings.Split(s, ",")
	peers := make([]consensus.Peer, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		at := strings.IndexByte(e, '@')
		if at < 0 {
			return nil, fmt.Errorf("malformed peer entry %q, want <pubkey>@<multiaddr>", e)
		}
		id, err := parsePeerID(e[:at])
		if err != nil {
			return nil, err
		}
		peers = append(peers, consensus.Peer{ID: id, Addr: e[at+1:]})
	}
	return peers, nil
}

func parsePeerID(hexStr string) (consensus.PeerID, error) {
	var id consensus.PeerID
	raw, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid hex %q: %w", hexStr, err)
	}
	if len(raw) != consensus.PeerIDSize {
		return id, fmt.Errorf("peer id must be %d bytes, got %d", consensus.PeerIDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
