package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/book"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/auth"
	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
	"github.com/uhyunpark/secret-orderbook/pkg/crypto"
	"github.com/uhyunpark/secret-orderbook/pkg/telemetry"
)

const maxBodyBytes = 1 << 20

// Factory handles view-key messages for a registry hosted in this process.
type Factory interface {
	HandleAs(ctx context.Context, sender common.Address, body []byte) (msg.FactoryAnswer, error)
}

type Options struct {
	AllowedOrigins []string
	Metrics        *telemetry.Metrics
	Logger         *zap.SugaredLogger
	// Factory, when set, is served at /api/v1/factory/execute.
	Factory Factory
}

// Server handles REST API and WebSocket connections
type Server struct {
	node    *book.Node
	router  *mux.Router
	hub     *Hub
	factory Factory
	metrics *telemetry.Metrics
	log     *zap.SugaredLogger
	origins []string
}

// NewServer creates a new API server
func NewServer(node *book.Node, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		node:    node,
		router:  mux.NewRouter(),
		factory: opts.Factory,
		metrics: opts.Metrics,
		log:     opts.Logger,
		origins: opts.AllowedOrigins,
	}
	s.hub = NewHub(node, opts.Logger)
	node.OnCommit(func(string, msg.Response) { s.hub.Notify() })

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/execute", s.handleExecute).Methods("POST")
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	if s.factory != nil {
		api.HandleFunc("/factory/execute", s.handleFactoryExecute).Methods("POST")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Hub returns the websocket hub so callers can run it.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

// readEnvelope decodes and verifies a signed request, writing the error
// response itself when it fails.
func (s *Server) readEnvelope(w http.ResponseWriter, r *http.Request) (crypto.Envelope, bool) {
	var env crypto.Envelope
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return env, false
	}
	if len(env.Msg) == 0 || len(env.Signature) == 0 {
		respondError(w, http.StatusBadRequest, "missing msg or signature", "")
		return env, false
	}
	if err := env.Verify(); err != nil {
		s.log.Debugw("execute_bad_signature", "sender", env.Sender.Hex(), "err", err)
		respondError(w, http.StatusUnauthorized, "invalid signature", err.Error())
		return env, false
	}
	return env, true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	env, ok := s.readEnvelope(w, r)
	if !ok {
		return
	}

	hm, err := msg.DecodeHandleMsg(env.Msg)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid message", err.Error())
		return
	}

	resp, err := s.node.ExecuteSigned(r.Context(), env.Sender, env.Nonce, hm)
	if err != nil {
		respondCallError(w, err)
		return
	}
	if resp.Messages == nil {
		resp.Messages = []msg.CosmosMsg{}
	}
	respondJSON(w, ExecuteResponse{Status: "committed", Messages: resp.Messages, Log: resp.Log})
}

// handleFactoryExecute serves view-key messages for the in-process
// registry. The signer of the envelope is the owner whose key is set.
func (s *Server) handleFactoryExecute(w http.ResponseWriter, r *http.Request) {
	env, ok := s.readEnvelope(w, r)
	if !ok {
		return
	}
	if err := s.node.SpendNonce(env.Sender, env.Nonce); err != nil {
		respondCallError(w, err)
		return
	}
	ans, err := s.factory.HandleAs(r.Context(), env.Sender, env.Msg)
	if err != nil {
		respondCallError(w, err)
		return
	}
	respondJSON(w, ans)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	q, err := msg.DecodeQueryMsg(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	out, err := s.node.Query(r.Context(), q)
	if err != nil {
		respondCallError(w, err)
		return
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok, err := s.node.Initialized()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "store unavailable", err.Error())
		return
	}
	respondJSON(w, map[string]any{"status": "ok", "initialized": ok})
}

// ==============================
// Helper Functions
// ==============================

// statusFor maps a call error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, msg.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, msg.ErrNoActiveOrder):
		return http.StatusNotFound
	case errors.Is(err, msg.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, msg.ErrStaleNonce):
		return http.StatusConflict
	case errors.Is(err, msg.ErrUnknownAsset),
		errors.Is(err, msg.ErrRecursiveNotification),
		errors.Is(err, msg.ErrUnsupportedInnerMessage),
		errors.Is(err, msg.ErrUnsupportedMessage),
		errors.Is(err, msg.ErrDuplicateOwner),
		errors.Is(err, msg.ErrZeroAmount),
		errors.Is(err, msg.ErrZeroPrice),
		errors.Is(err, msg.ErrInvalidSide),
		errors.Is(err, msg.ErrAlreadyInitialized),
		errors.Is(err, auth.ErrEmptyViewKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondCallError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		// never say why
		respondError(w, status, msg.ErrUnauthorized.Error(), "")
		return
	}
	if status == http.StatusInternalServerError {
		respondError(w, status, "internal error", "")
		return
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
