// file: pkg/consensus/engine.go
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/praxis-chain/rpubft/pkg/crypto"
	"github.com/praxis-chain/rpubft/pkg/util"
	"go.uber.org/zap"
)

// EngineConfig wires every collaborator a running RPU needs: roster, signer,
// network transport, persistence, and the tunables for block production and
// the censorship watchdog.
type EngineConfig struct {
	Roster   *Roster
	Signer   *crypto.BLSSigner
	Net      Network
	Store    BlockStore
	World    WorldState
	Verifier TxVerifier
	Clock    util.Clock
	Logger   *zap.SugaredLogger
	Verbose  bool

	WindowSize        int
	MaxTxPerBlock     int
	PhaseTimeout      time.Duration
	CensorshipTimeout time.Duration
}

// Engine ties the follower state machine, the leader driver, and the
// censorship watchdog into a single runnable unit. cmd/node builds the
// collaborators (roster, signer, network, stores, verifier) and passes them
// in via EngineConfig.
type Engine struct {
	Follower *Follower
	Leader   *Leader
	Watchdog *Watchdog
	Net      Network
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	queue := NewQueue(cfg.Clock)

	follower := NewFollower(FollowerConfig{
		Roster:     cfg.Roster,
		Signer:     cfg.Signer,
		WindowSize: cfg.WindowSize,
		Queue:      queue,
		Store:      cfg.Store,
		World:      cfg.World,
		Verifier:   cfg.Verifier,
		Net:        cfg.Net,
		Logger:     cfg.Logger,
		Verbose:    cfg.Verbose,
	})

	if last := cfg.Store.LastHeight(); last > 0 {
		follower.committed = last
		follower.lastHash = cfg.Store.LastHash()
	}

	leader := NewLeader(follower, LeaderConfig{
		MaxTxPerBlock: cfg.MaxTxPerBlock,
		PhaseTimeout:  cfg.PhaseTimeout,
	})

	watchdog := NewWatchdog(follower, cfg.CensorshipTimeout, cfg.Clock)

	return &Engine{Follower: follower, Leader: leader, Watchdog: watchdog, Net: cfg.Net}
}

func (e *Engine) Committed() (BlockNumber, BlockHash) { return e.Follower.Committed() }

func (e *Engine) LeaderTerm() LeaderTerm { return e.Follower.LeaderTerm() }

// Submit enqueues client transactions in this RPU's local queue, from which
// they are proposed when this RPU leads. Nothing forwards them to the
// current leader: pkg/statusapi's /tx handler calls Submit and does not
// forward either.
func (e *Engine) Submit(txs ...SignedTransaction) {
	e.Follower.queue.Push(txs...)
}

// Run starts the leader driver and censorship watchdog and blocks until ctx
// is cancelled. Inbound envelopes are delivered by the Network
// implementation calling e.Follower.HandleEnvelope directly; Run does not
// itself listen on anything.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); e.Leader.Run(ctx) }()
	go func() { defer wg.Done(); e.Watchdog.Run(ctx) }()
	wg.Wait()
}
