package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/praxis-chain/rpubft/params"
	"github.com/praxis-chain/rpubft/pkg/consensus"
	"github.com/praxis-chain/rpubft/pkg/crypto"
	"github.com/praxis-chain/rpubft/pkg/p2p"
	"github.com/praxis-chain/rpubft/pkg/statusapi"
	"github.com/praxis-chain/rpubft/pkg/storage"
	"github.com/praxis-chain/rpubft/pkg/util"
	"github.com/praxis-chain/rpubft/pkg/worldstate"
)

func main() {
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.Peers) == 0 {
		log.Fatal("RPU_PEERS is required: comma-separated <hex-pubkey>@<multiaddr> roster entries")
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "node.log")
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	seedHex := os.Getenv("RPU_SEED")
	if seedHex == "" {
		log.Fatal("RPU_SEED is required: hex-encoded seed for this RPU's BLS identity key")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		sugar.Fatalw("bad_rpu_seed", "err", err)
	}
	signer := crypto.NewBLSSignerFromSeed(seed)
	self := consensus.PeerID(signer.PeerID())

	roster := consensus.NewRoster(self, cfg.Peers)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir", "err", err)
	}
	store, err := storage.NewPebbleStore(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		sugar.Fatalw("block_store_open_failed", "err", err)
	}

	world, err := worldstate.New(filepath.Join(cfg.DataDir, "state.json"))
	if err != nil {
		sugar.Fatalw("world_state_open_failed", "err", err)
	}

	verifier := worldstate.NewVerifier(roster, nil)

	wal, err := storage.NewFileWAL(filepath.Join(cfg.DataDir, "commits.wal"))
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	net, err := p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
		ListenAddr: cfg.ListenAddr,
		Self:       self,
		Peers:      cfg.Peers,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}

	engine := consensus.NewEngine(consensus.EngineConfig{
		Roster:            roster,
		Signer:            signer,
		Net:               net,
		Store:             store,
		World:             world,
		Verifier:          verifier,
		Logger:            sugar,
		Verbose:           os.Getenv("VERBOSE") == "true",
		WindowSize:        cfg.RoundWindow,
		MaxTxPerBlock:     cfg.MaxTxPerBlock,
		PhaseTimeout:      cfg.PhaseTimeout,
		CensorshipTimeout: cfg.CensorshipTimeout,
	})
	net.SetInboundHandler(engine.Follower.HandleEnvelope)

	statusSrv := statusapi.NewServer(engine, roster, sugar)
	engine.Follower.SetOnCommit(func(b consensus.Block) {
		statusSrv.NotifyCommit(b)
		wal.Append(fmt.Sprintf("height=%d hash=%s txs=%d", b.Body.Height, b.Hash(), len(b.Body.Transactions)))
	})

	go func() {
		sugar.Infow("status_api_starting", "addr", cfg.StatusAddr)
		if err := statusSrv.Start(cfg.StatusAddr); err != nil {
			sugar.Fatalw("status_api_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"self", self.String(),
		"peers", roster.Len(),
		"quorum", roster.Quorum(),
	)

	engine.Run(ctx)
}
