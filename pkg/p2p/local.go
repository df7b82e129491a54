package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

// LocalNetwork wires a fixed set of in-process RPUs together without any
// real transport, for tests that exercise the full consensus protocol
// end-to-end without libp2p.
type LocalNetwork struct {
	mu       sync.RWMutex
	handlers map[consensus.PeerID]consensus.InboundHandler
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{handlers: make(map[consensus.PeerID]consensus.InboundHandler)}
}

// Register attaches id's inbound handler; Send to id is routed here
// in-process, and ViewChange/NewView are fanned out to every registered
// handler, mirroring the gossip delivery of Libp2pNet.
func (n *LocalNetwork) Register(id consensus.PeerID, fn consensus.InboundHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = fn
}

func (n *LocalNetwork) Send(ctx context.Context, to consensus.PeerID, env consensus.Envelope) (consensus.Envelope, error) {
	switch env.Msg.Kind() {
	case consensus.KindViewChange, consensus.KindNewView:
		n.mu.RLock()
		handlers := make([]consensus.InboundHandler, 0, len(n.handlers))
		for _, fn := range n.handlers {
			handlers = append(handlers, fn)
		}
		n.mu.RUnlock()
		for _, fn := range handlers {
			go fn(ctx, env)
		}
		return consensus.Envelope{}, nil
	}

	n.mu.RLock()
	fn, ok := n.handlers[to]
	n.mu.RUnlock()
	if !ok {
		return consensus.Envelope{}, fmt.Errorf("p2p: no local handler for %s", to)
	}
	reply, err := fn(ctx, env)
	if err != nil {
		return consensus.Envelope{}, err
	}
	if reply == nil {
		return consensus.Envelope{}, fmt.Errorf("p2p: nil reply for %s", env.Msg.Kind())
	}
	return *reply, nil
}

var _ consensus.Network = (*LocalNetwork)(nil)
