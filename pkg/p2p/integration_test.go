package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/praxis-chain/rpubft/pkg/consensus"
	praxiscrypto "github.com/praxis-chain/rpubft/pkg/crypto"
	"github.com/praxis-chain/rpubft/pkg/p2p"
	"github.com/praxis-chain/rpubft/pkg/storage"
	"github.com/praxis-chain/rpubft/pkg/util"
	"github.com/praxis-chain/rpubft/pkg/worldstate"
)

type rpu struct {
	engine *consensus.Engine
	world  *worldstate.KVStore
}

func buildCluster(t *testing.T, n int) ([]rpu, *consensus.Roster) {
	t.Helper()

	signers := make([]*praxiscrypto.BLSSigner, n)
	peers := make([]consensus.Peer, n)
	for i := 0; i < n; i++ {
		signers[i] = praxiscrypto.NewBLSSignerFromSeed([]byte{byte(i + 1), byte(i + 1)})
		peers[i] = consensus.Peer{ID: consensus.PeerID(signers[i].PeerID()), Addr: "local"}
	}

	net := p2p.NewLocalNetwork()
	rpus := make([]rpu, n)
	for i := 0; i < n; i++ {
		roster := consensus.NewRoster(peers[i].ID, peers)
		world, err := worldstate.New("")
		if err != nil {
			t.Fatalf("worldstate.New: %v", err)
		}
		engine := consensus.NewEngine(consensus.EngineConfig{
			Roster:            roster,
			Signer:            signers[i],
			Net:               net,
			Store:             storage.NewInMemoryBlockStore(),
			World:             world,
			Verifier:          worldstate.NewVerifier(roster, nil),
			Clock:             util.RealClock{},
			WindowSize:        8,
			MaxTxPerBlock:     10,
			PhaseTimeout:      2 * time.Second,
			CensorshipTimeout: 5 * time.Second,
		})
		net.Register(peers[i].ID, engine.Follower.HandleEnvelope)
		rpus[i] = rpu{engine: engine, world: world}
	}
	return rpus, consensus.NewRoster(peers[0].ID, peers)
}

func signedTx(t *testing.T, payload string) consensus.SignedTransaction {
	t.Helper()
	signer, err := praxiscrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sig, err := signer.SignMessage([]byte(payload))
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	return consensus.SignedTransaction{
		Payload:   []byte(payload),
		Signature: sig,
		Signer:    [20]byte(signer.Address()),
	}
}

func TestFourRPUClusterCommitsAndConverges(t *testing.T) {
	rpus, _ := buildCluster(t, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, r := range rpus {
		go r.engine.Run(ctx)
	}

	tx := signedTx(t, "greeting=hello")
	for _, r := range rpus {
		r.engine.Submit(tx)
	}

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		allCommitted := true
		for _, r := range rpus {
			height, _ := r.engine.Committed()
			if height < 1 {
				allCommitted = false
				break
			}
		}
		if allCommitted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	for i, r := range rpus {
		height, _ := r.engine.Committed()
		if height < 1 {
			t.Fatalf("rpu %d never committed a block (height=%d)", i, height)
		}
		v, ok := r.world.Get("greeting")
		if !ok || v != "hello" {
			t.Fatalf("rpu %d worldstate: got (%q, %v), want (\"hello\", true)", i, v, ok)
		}
	}
}

func TestHandleEnvelopeRejectsUnknownPeer(t *testing.T) {
	rpus, _ := buildCluster(t, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	outsider := praxiscrypto.NewBLSSignerFromSeed([]byte("not-in-the-roster"))
	env := consensus.Sign(outsider, consensus.PrepareMsg{LeaderTerm: 0, BlockNumber: 1})

	if _, err := rpus[0].engine.Follower.HandleEnvelope(ctx, env); err == nil {
		t.Fatal("HandleEnvelope from a non-roster peer must be rejected")
	}
}
