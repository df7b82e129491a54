// Package statusapi exposes a small REST + WebSocket surface over a running
// RPU: chain status, health, transaction submission, and a commit feed.
// It stays deliberately thin — no application-level endpoints, since client
// application state is outside consensus's scope; it exists so operators
// and lightweight clients have something to poll or subscribe to without
// speaking the RPU-to-RPU wire protocol directly.
package statusapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/praxis-chain/rpubft/pkg/consensus"
	"go.uber.org/zap"
)

// Node is the subset of Engine the status API needs; kept narrow so tests
// can supply a stub instead of a full Engine.
type Node interface {
	Committed() (consensus.BlockNumber, consensus.BlockHash)
	LeaderTerm() consensus.LeaderTerm
	Submit(txs ...consensus.SignedTransaction)
}

type Server struct {
	node   Node
	roster *consensus.Roster
	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewServer(node Node, roster *consensus.Roster, logger *zap.SugaredLogger) *Server {
	s := &Server{node: node, roster: roster, router: mux.NewRouter(), hub: NewHub(), logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// NotifyCommit pushes a commit event to every connected WebSocket client;
// wired as the Engine's onCommit hook.
func (s *Server) NotifyCommit(b consensus.Block) {
	data, err := json.Marshal(commitEvent{
		Height:    uint64(b.Body.Height),
		Hash:      hex.EncodeToString(b.Hash()[:]),
		TxCount:   len(b.Body.Transactions),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(data)
}

func (s *Server) Start(addr string) error {
	go s.hub.Run()
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	if s.logger != nil {
		s.logger.Infow("statusapi_listen", "addr", addr)
	}
	return http.ListenAndServe(addr, c.Handler(s.router))
}

type commitEvent struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	TxCount   int    `json:"tx_count"`
	Timestamp int64  `json:"timestamp"`
}

type statusResponse struct {
	Height     uint64 `json:"height"`
	Hash       string `json:"hash"`
	LeaderTerm uint64 `json:"leader_term"`
	Leader     string `json:"leader"`
	Self       string `json:"self"`
	Peers      int    `json:"peers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	height, hash := s.node.Committed()
	term := s.node.LeaderTerm()
	leader := s.roster.LeaderFor(term)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Height:     uint64(height),
		Hash:       hex.EncodeToString(hash[:]),
		LeaderTerm: uint64(term),
		Leader:     leader.String(),
		Self:       s.roster.Self().String(),
		Peers:      s.roster.Len(),
	})
}

type submitTxRequest struct {
	Payload   string `json:"payload"`   // hex-encoded
	Signature string `json:"signature"` // hex-encoded, 65 bytes
	Signer    string `json:"signer"`    // hex-encoded, 20 bytes
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var req submitTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := hex.DecodeString(trim0x(req.Payload))
	if err != nil {
		http.Error(w, "invalid payload hex", http.StatusBadRequest)
		return
	}
	sig, err := hex.DecodeString(trim0x(req.Signature))
	if err != nil {
		http.Error(w, "invalid signature hex", http.StatusBadRequest)
		return
	}
	signerBytes, err := hex.DecodeString(trim0x(req.Signer))
	if err != nil || len(signerBytes) != 20 {
		http.Error(w, "invalid signer hex", http.StatusBadRequest)
		return
	}
	var signer [20]byte
	copy(signer[:], signerBytes)

	s.node.Submit(consensus.SignedTransaction{Payload: payload, Signature: sig, Signer: signer})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
