package p2p

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/praxis-chain/rpubft/pkg/consensus"
)

const (
	protoRPU = protocol.ID("/praxis/rpu/1.0.0")
	// view-change and new-view carry no reply in this protocol (see
	// consensus.HandleEnvelope), so they travel over a gossip topic instead
	// of a request/response stream: any RPU can originate one and every
	// other RPU just needs to observe it, which is what pubsub is for.
	topicViewChange = "rpu-view-change"
	topicNewView    = "rpu-new-view"
)

// Libp2pNet implements consensus.Network as a bidirectional, peer-
// authenticated transport over libp2p: Prepare/Append/Commit travel as a
// single request/response stream per call (mirroring the RPC-style
// transport the core is built against), while ViewChange/NewView — which
// expect no reply — are gossiped over a pubsub topic that every RPU
// subscribes to and re-delivers to its own inbound handler.
type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	self    consensus.PeerID
	addrOf  map[consensus.PeerID]peer.ID
	inbound consensus.InboundHandler

	tViewChange  *pubsub.Topic
	tNewView     *pubsub.Topic
	subVC        *pubsub.Subscription
	subNV        *pubsub.Subscription

	muH sync.RWMutex
}

type Libp2pConfig struct {
	ListenAddr string
	Self       consensus.PeerID
	Peers      []consensus.Peer // Peer.Addr is a full multiaddr including /p2p/<id>
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	n := &Libp2pNet{
		h: h, ps: ps, log: cfg.Logger,
		self:   cfg.Self,
		addrOf: make(map[consensus.PeerID]peer.ID, len(cfg.Peers)),
	}

	for _, p := range cfg.Peers {
		if p.ID == cfg.Self {
			continue
		}
		m, err := ma.NewMultiaddr(p.Addr)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", p.ID, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(m)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", p.ID, err)
		}
		h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		n.addrOf[p.ID] = info.ID
	}

	if n.tViewChange, err = ps.Join(topicViewChange); err != nil {
		return nil, err
	}
	if n.tNewView, err = ps.Join(topicNewView); err != nil {
		return nil, err
	}
	if n.subVC, err = n.tViewChange.Subscribe(); err != nil {
		return nil, err
	}
	if n.subNV, err = n.tNewView.Subscribe(); err != nil {
		return nil, err
	}

	h.SetStreamHandler(protoRPU, n.handleStream)
	go n.relay(ctx, n.subVC)
	go n.relay(ctx, n.subNV)

	if cfg.Logger != nil {
		cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	}
	return n, nil
}

// SetInboundHandler registers the callback invoked for every envelope this
// node receives, addressed to it or gossiped to the whole roster.
func (n *Libp2pNet) SetInboundHandler(fn consensus.InboundHandler) {
	n.muH.Lock()
	n.inbound = fn
	n.muH.Unlock()
}

func (n *Libp2pNet) handler() consensus.InboundHandler {
	n.muH.RLock()
	defer n.muH.RUnlock()
	return n.inbound
}

// Send implements consensus.Network.
func (n *Libp2pNet) Send(ctx context.Context, to consensus.PeerID, env consensus.Envelope) (consensus.Envelope, error) {
	switch env.Msg.Kind() {
	case consensus.KindViewChange:
		return consensus.Envelope{}, n.publish(ctx, n.tViewChange, env)
	case consensus.KindNewView:
		return consensus.Envelope{}, n.publish(ctx, n.tNewView, env)
	default:
		return n.sendUnicast(ctx, to, env)
	}
}

func (n *Libp2pNet) publish(ctx context.Context, topic *pubsub.Topic, env consensus.Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

func (n *Libp2pNet) sendUnicast(ctx context.Context, to consensus.PeerID, env consensus.Envelope) (consensus.Envelope, error) {
	pid, ok := n.addrOf[to]
	if !ok {
		return consensus.Envelope{}, fmt.Errorf("p2p: unknown peer %s", to)
	}

	stream, err := n.h.NewStream(ctx, pid, protoRPU)
	if err != nil {
		return consensus.Envelope{}, err
	}
	defer stream.Close()

	data, err := EncodeEnvelope(env)
	if err != nil {
		return consensus.Envelope{}, err
	}
	if err := writeFrame(stream, data); err != nil {
		return consensus.Envelope{}, err
	}
	if err := stream.CloseWrite(); err != nil {
		return consensus.Envelope{}, err
	}

	replyData, err := readFrame(stream)
	if err != nil {
		return consensus.Envelope{}, err
	}
	return DecodeEnvelope(replyData)
}

// handleStream answers one Prepare/Append/Commit RPC: read the request
// frame, run it through the registered handler, write the signed reply.
func (n *Libp2pNet) handleStream(s network.Stream) {
	defer s.Close()

	data, err := readFrame(s)
	if err != nil {
		return
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		return
	}

	fn := n.handler()
	if fn == nil {
		return
	}
	reply, err := fn(context.Background(), env)
	if err != nil || reply == nil {
		if n.log != nil {
			n.log.Debugw("rpu_rpc_rejected", "peer", env.Peer.String(), "err", err)
		}
		return
	}

	out, err := EncodeEnvelope(*reply)
	if err != nil {
		return
	}
	_ = writeFrame(s, out)
}

// relay feeds gossiped ViewChange/NewView envelopes to the local handler;
// no reply is sent back onto the topic.
func (n *Libp2pNet) relay(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		env, err := DecodeEnvelope(msg.Data)
		if err != nil {
			continue
		}
		if fn := n.handler(); fn != nil {
			_, _ = fn(ctx, env)
		}
	}
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	n := len(data)
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ consensus.Network = (*Libp2pNet)(nil)
