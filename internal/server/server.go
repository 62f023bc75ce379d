package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"mintgate/internal/chain"
	"mintgate/internal/hintcache"
	"mintgate/internal/minter"
	"mintgate/internal/mintid"
)

// MintService is the minting core as the HTTP layer sees it.
type MintService interface {
	Mint(ctx context.Context, key string, to common.Address, amount *big.Int) (common.Hash, error)
	Status(ctx context.Context, key string) (minter.Status, error)
}

type Server struct {
	svc           MintService
	ledger        chain.Ledger
	httpServer    *http.Server
	metrics       *metricsRegistry
	rpcHealthFn   func(context.Context) error
	cacheHealthFn func(context.Context) error
}

func NewServer(httpPort int, svc MintService, ledger chain.Ledger, cache hintcache.Store) *Server {
	s := &Server{
		svc:     svc,
		ledger:  ledger,
		metrics: newMetricsRegistry(),
	}

	if checker, ok := ledger.(chain.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}
	if checker, ok := cache.(interface{ Ping(context.Context) error }); ok {
		s.cacheHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mintTokens", s.handleMintTokens)
	mux.HandleFunc("/getMintingStatus", s.handleMintingStatus)
	mux.HandleFunc("/blockChainHeight", s.handleBlockChainHeight)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(httpPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// CacheDegraded counts hint-cache operations the core degraded to no-ops.
// Wired into the minting service as its degradation hook.
func (s *Server) CacheDegraded(op string) {
	s.metrics.incCacheDegraded(op)
}

func (s *Server) handleMintTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	mintID := q.Get("mint_id")
	if mintID == "" {
		http.Error(w, "empty mint_id", http.StatusBadRequest)
		return
	}
	address := q.Get("address")
	if !common.IsHexAddress(address) {
		http.Error(w, "bad address", http.StatusBadRequest)
		return
	}
	amount, ok := new(big.Int).SetString(q.Get("tokens_amount"), 10)
	if !ok || amount.Sign() < 0 {
		http.Error(w, "bad tokens_amount", http.StatusBadRequest)
		return
	}

	_, err := s.svc.Mint(r.Context(), mintID, common.HexToAddress(address), amount)
	if err != nil {
		s.writeMintError(w, err)
		return
	}

	s.metrics.incMint("submitted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMintingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mintID := r.URL.Query().Get("mint_id")
	if mintID == "" {
		http.Error(w, "empty mint_id", http.StatusBadRequest)
		return
	}

	status, err := s.svc.Status(r.Context(), mintID)
	if err != nil {
		s.metrics.incStatus("error")
		switch {
		case errors.Is(err, mintid.ErrEmptyKey):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, minter.ErrNotDeployed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, "failed to query status: "+err.Error(), http.StatusBadGateway)
		}
		return
	}

	s.metrics.incStatus(string(status.State))
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleBlockChainHeight(w http.ResponseWriter, r *http.Request) {
	height, err := s.ledger.BlockNumber(r.Context())
	if err != nil {
		http.Error(w, "failed to query height: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, height)
}

func (s *Server) writeMintError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mintid.ErrEmptyKey), errors.Is(err, minter.ErrInvalidAmount):
		s.metrics.incMint("rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, minter.ErrNotDeployed):
		s.metrics.incMint("failed")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.metrics.incMint("failed")
		http.Error(w, "failed to submit mint: "+err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	cacheInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.cacheHealthFn != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.cacheHealthFn(cacheCtx); err != nil {
			// Cache is best-effort, so an outage degrades rather than
			// fails the service.
			cacheInfo.Connected = false
			cacheInfo.Error = err.Error()
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "unhealthy"
	} else if !cacheInfo.Connected {
		status = "degraded"
	}

	resp := struct {
		Status string      `json:"status"`
		RPC    interface{} `json:"rpc"`
		Cache  interface{} `json:"cache"`
	}{
		Status: status,
		RPC:    rpcInfo,
		Cache:  cacheInfo,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", uuid.NewString())
		}
		next.ServeHTTP(w, r)
	})
}
