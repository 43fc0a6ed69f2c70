// Package httpapi is the External Interface Facade spec.md §6 defines:
// a thin gorilla/mux HTTP layer translating JSON requests into Engine
// calls. It is explicitly excluded from the audited core (spec.md §1
// Non-goals) but still needs the teacher's ambient middleware stack.
package httpapi

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/builders-garden/watchy/internal/apierr"
	"github.com/builders-garden/watchy/internal/chainregistry"
	"github.com/builders-garden/watchy/internal/engine"
	"github.com/builders-garden/watchy/internal/jobstore"
	"github.com/builders-garden/watchy/internal/logging"
	"github.com/builders-garden/watchy/internal/model"
	"github.com/builders-garden/watchy/internal/obsmetrics"
)

// estimatedAuditDuration is the audit wall-clock deadline (spec.md §5):
// the upper bound reported to callers as estimated_completion.
const estimatedAuditDuration = 180 * time.Second

// Server wires the Engine behind HTTP handlers.
type Server struct {
	engine         *engine.Engine
	log            *logging.Logger
	metrics        *obsmetrics.Metrics
	apiKey         string
	version        string
	chains         *chainregistry.Registry
	defaultChainID uint64
	storageBackend string
	walletMode     string
	signerAddress  string
}

// Config configures the Server's router.
type Config struct {
	Engine         *engine.Engine
	Logger         *logging.Logger
	Metrics        *obsmetrics.Metrics
	APIKey         string
	Version        string
	Chains         *chainregistry.Registry
	DefaultChainID uint64
	StorageBackend string
	WalletMode     string
	SignerAddress  string
}

// NewServer builds a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		engine:         cfg.Engine,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		apiKey:         cfg.APIKey,
		version:        cfg.Version,
		chains:         cfg.Chains,
		defaultChainID: cfg.DefaultChainID,
		storageBackend: cfg.StorageBackend,
		walletMode:     cfg.WalletMode,
		signerAddress:  cfg.SignerAddress,
	}
}

// Router builds the mux.Router with the full middleware chain applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(RecoveryMiddleware(s.log))
	r.Use(LoggingMiddleware(s.log))
	r.Use(MetricsMiddleware(s.metrics))
	r.Use(APIKeyMiddleware(s.apiKey))
	r.Use(CORSMiddleware())

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/audit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/audit/{audit_id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/audit/{audit_id}/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/agents/{registry}/{agent_id}/audits", s.handleListByAgent).Methods(http.MethodGet)
	return r
}

type submitRequest struct {
	AgentID     string `json:"agent_id"`
	ChainID     uint64 `json:"chain_id"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type submitResponse struct {
	AuditID             string    `json:"audit_id"`
	ChainID             uint64    `json:"chain_id"`
	ChainName           string    `json:"chain_name"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErr(w, apierr.InvalidRequest("malformed request body"))
		return
	}
	agentID, ok := new(big.Int).SetString(req.AgentID, 10)
	if !ok || agentID.Sign() < 0 {
		writeAPIErr(w, apierr.InvalidAgentID(req.AgentID))
		return
	}
	if req.ChainID == 0 {
		writeAPIErr(w, apierr.InvalidRequest("chain_id is required"))
		return
	}

	auditID, err := s.engine.Submit(r.Context(), agentID, req.ChainID, req.CallbackURL)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidAgent):
			writeAPIErr(w, apierr.InvalidRequest("unsupported chain_id"))
		case errors.Is(err, engine.ErrRateLimited):
			writeAPIErr(w, apierr.RateLimited(0))
		default:
			writeAPIErr(w, apierr.Internal("failed to submit audit", err))
		}
		return
	}

	chainName := ""
	if cfg, ok := s.chains.Lookup(req.ChainID); ok {
		chainName = cfg.Name
	}
	createdAt := time.Now().UTC()
	writeJSON(w, http.StatusAccepted, submitResponse{
		AuditID:             auditID,
		ChainID:             req.ChainID,
		ChainName:           chainName,
		Status:              string(model.StatusPending),
		CreatedAt:           createdAt,
		EstimatedCompletion: createdAt.Add(estimatedAuditDuration),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	auditID := mux.Vars(r)["audit_id"]
	job, err := s.engine.Status(r.Context(), auditID)
	if err != nil {
		if err == jobstore.ErrNotFound {
			writeAPIErr(w, apierr.NotFound("audit", auditID))
			return
		}
		writeAPIErr(w, apierr.Internal("internal error", err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	auditID := mux.Vars(r)["audit_id"]
	rep, err := s.engine.Report(r.Context(), auditID)
	if err != nil {
		switch {
		case errors.Is(err, jobstore.ErrNotFound):
			writeAPIErr(w, apierr.NotFound("audit", auditID))
		case errors.Is(err, engine.ErrNotCompleted):
			writeAPIErr(w, apierr.NotCompleted(auditID))
		default:
			writeAPIErr(w, apierr.Internal("internal error", err))
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleListByAgent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	registry := vars["registry"]
	agentID := vars["agent_id"]

	chainID, err := strconv.ParseUint(r.URL.Query().Get("chain_id"), 10, 64)
	if err != nil {
		writeAPIErr(w, apierr.InvalidRequest("chain_id query parameter is required"))
		return
	}
	_ = registry // the registry path segment documents which contract; filtering is by chain_id+agent_id

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := s.engine.ListByAgent(r.Context(), chainID, agentID, jobstore.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeAPIErr(w, apierr.Internal("internal error", err))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type healthResponse struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	SupportedChains []uint64 `json:"supported_chains"`
	DefaultChain    uint64   `json:"default_chain"`
	Storage         string   `json:"storage"`
	WalletMode      string   `json:"wallet_mode"`
	SignerAddress   string   `json:"signer_address,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Version:         s.version,
		SupportedChains: s.chains.SupportedChainIDs(),
		DefaultChain:    s.defaultChainID,
		Storage:         s.storageBackend,
		WalletMode:      s.walletMode,
		SignerAddress:   s.signerAddress,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIErr(w http.ResponseWriter, err *apierr.Error) {
	writeError(w, err, err.HTTPStatus, string(err.Code))
}

func writeError(w http.ResponseWriter, err error, status int, code string) {
	writeJSON(w, status, map[string]interface{}{"code": code, "message": err.Error()})
}
