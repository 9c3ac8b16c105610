// Package server provides the thin HTTP binding over the Boswell engine:
// request parsing, tenant scoping and error mapping. All semantics live in
// the engine and storage layers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/stevekrontz-dev/boswell/internal/config"
	"github.com/stevekrontz-dev/boswell/internal/engine"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// tenantHeader names the header carrying the tenant ID. Authentication and
// tenant issuance are external concerns; the server only scopes by the value.
const tenantHeader = "X-Boswell-Tenant"

const defaultTenant = "default"

// Services bundles the engine components the server binds.
type Services struct {
	Repository   *engine.Repository
	Fingerprints *engine.Fingerprints
	Router       *engine.Router
	Trails       *engine.Trails
	Links        *engine.Links
	Checkpoints  *engine.Checkpoints
}

// Server is the HTTP front end.
type Server struct {
	cfg *config.Config
	svc Services
}

// New builds a server over the engine services.
func New(cfg *config.Config, svc Services) *Server {
	return &Server{cfg: cfg, svc: svc}
}

// Handler builds the route table with the standard middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("GET /api/blobs/{hash}", s.handleGetBlob)
	mux.HandleFunc("GET /api/blobs", s.handleFindByTag)

	mux.HandleFunc("GET /api/branches", s.handleListBranches)
	mux.HandleFunc("POST /api/branches", s.handleCreateBranch)
	mux.HandleFunc("GET /api/branches/{name}", s.handleCheckout)
	mux.HandleFunc("GET /api/branches/{name}/log", s.handleLog)

	mux.HandleFunc("POST /api/fingerprints/bootstrap", s.handleBootstrap)
	mux.HandleFunc("GET /api/fingerprints", s.handleListFingerprints)
	mux.HandleFunc("POST /api/routing/validate", s.handleValidateRouting)

	mux.HandleFunc("POST /api/trails", s.handleRecordTrail)
	mux.HandleFunc("GET /api/trails/hot", s.handleHotTrails)
	mux.HandleFunc("GET /api/trails/from/{blob}", s.handleTrailsFrom)
	mux.HandleFunc("GET /api/trails/to/{blob}", s.handleTrailsTo)
	mux.HandleFunc("GET /api/trails/buried", s.handleBuriedTrails)
	mux.HandleFunc("GET /api/trails/health", s.handleTrailHealth)
	mux.HandleFunc("GET /api/trails/forecast", s.handleTrailForecast)
	mux.HandleFunc("POST /api/trails/resurrect", s.handleResurrect)

	mux.HandleFunc("POST /api/links", s.handleCreateLink)
	mux.HandleFunc("GET /api/links", s.handleListLinks)

	mux.HandleFunc("POST /api/checkpoints", s.handleSaveCheckpoint)
	mux.HandleFunc("GET /api/checkpoints/{task}", s.handleResumeCheckpoint)
	mux.HandleFunc("DELETE /api/checkpoints/{task}", s.handleClearCheckpoint)

	limiter := rate.NewLimiter(rate.Limit(50), 100)
	return securityHeaders(rateLimit(mux, limiter))
}

// Start listens on the configured host/port and serves until ctx is
// cancelled, then shuts down gracefully. It returns the bound address, which
// matters when the configured port is 0.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("server: listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

func tenantID(r *http.Request) string {
	if tenant := r.Header.Get(tenantHeader); tenant != "" {
		return tenant
	}
	return defaultTenant
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

// --- commit graph ---

type commitRequest struct {
	Branch      string   `json:"branch"`
	Content     any      `json:"content"`
	ContentType string   `json:"content_type,omitempty"`
	Message     string   `json:"message"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ForceBranch bool     `json:"force_branch,omitempty"`
}

type commitResponse struct {
	*types.CommitResult
	RoutingSuggestion *types.RoutingSuggestion `json:"routing_suggestion,omitempty"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	result, suggestion, err := s.svc.Repository.Commit(r.Context(), engine.CommitRequest{
		TenantID:    tenantID(r),
		Branch:      req.Branch,
		Content:     req.Content,
		ContentType: req.ContentType,
		Message:     req.Message,
		Author:      req.Author,
		Tags:        req.Tags,
		ForceBranch: req.ForceBranch,
	})
	if err != nil {
		respondStorageError(w, "commit failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, commitResponse{CommitResult: result, RoutingSuggestion: suggestion})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	blob, err := s.svc.Repository.GetBlob(r.Context(), tenantID(r), r.PathValue("hash"))
	if err != nil {
		respondStorageError(w, "failed to get blob", err)
		return
	}
	respondJSON(w, http.StatusOK, blob)
}

func (s *Server) handleFindByTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		respondError(w, http.StatusBadRequest, "tag query parameter is required", nil)
		return
	}
	blobs, err := s.svc.Repository.FindByTag(r.Context(), tenantID(r), tag, queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "tag search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"blobs": blobs})
}

type createBranchRequest struct {
	Name        string `json:"name"`
	From        string `json:"from,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	branch, err := s.svc.Repository.CreateBranch(r.Context(), tenantID(r), req.Name, req.From, req.Description)
	if err != nil {
		respondStorageError(w, "failed to create branch", err)
		return
	}
	respondJSON(w, http.StatusCreated, branch)
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.svc.Repository.ListBranches(r.Context(), tenantID(r))
	if err != nil {
		respondStorageError(w, "failed to list branches", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	branch, err := s.svc.Repository.Checkout(r.Context(), tenantID(r), r.PathValue("name"))
	if err != nil {
		respondStorageError(w, "failed to get branch", err)
		return
	}
	respondJSON(w, http.StatusOK, branch)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	commits, err := s.svc.Repository.Log(r.Context(), tenantID(r), r.PathValue("name"), queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "failed to read history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

// --- fingerprints and routing ---

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.Fingerprints.Bootstrap(r.Context(), tenantID(r), time.Now())
	if err != nil {
		respondStorageError(w, "fingerprint bootstrap failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListFingerprints(w http.ResponseWriter, r *http.Request) {
	fingerprints, err := s.svc.Fingerprints.List(r.Context(), tenantID(r))
	if err != nil {
		respondStorageError(w, "failed to list fingerprints", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"fingerprints": fingerprints})
}

type validateRoutingRequest struct {
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

func (s *Server) handleValidateRouting(w http.ResponseWriter, r *http.Request) {
	var req validateRoutingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Content == "" || req.Branch == "" {
		respondError(w, http.StatusBadRequest, "content and branch are required", nil)
		return
	}
	suggestion, err := s.svc.Router.Validate(r.Context(), tenantID(r), req.Branch, req.Content)
	if err != nil {
		respondStorageError(w, "routing validation failed", err)
		return
	}
	if suggestion == nil {
		// Embedding unavailable or no fingerprints: degraded, not an error.
		respondJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	respondJSON(w, http.StatusOK, suggestion)
}

// --- trails ---

type recordTrailRequest struct {
	SourceBlob string `json:"source_blob"`
	TargetBlob string `json:"target_blob"`
}

func (s *Server) handleRecordTrail(w http.ResponseWriter, r *http.Request) {
	var req recordTrailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	trail, err := s.svc.Trails.Record(r.Context(), tenantID(r), req.SourceBlob, req.TargetBlob, time.Now())
	if err != nil {
		respondStorageError(w, "failed to record trail", err)
		return
	}
	respondJSON(w, http.StatusCreated, trail)
}

func (s *Server) handleHotTrails(w http.ResponseWriter, r *http.Request) {
	trails, err := s.svc.Trails.Hot(r.Context(), tenantID(r), queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "failed to list trails", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trails": trails})
}

func (s *Server) handleTrailsFrom(w http.ResponseWriter, r *http.Request) {
	trails, err := s.svc.Trails.From(r.Context(), tenantID(r), r.PathValue("blob"), queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "failed to list trails", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trails": trails})
}

func (s *Server) handleTrailsTo(w http.ResponseWriter, r *http.Request) {
	trails, err := s.svc.Trails.To(r.Context(), tenantID(r), r.PathValue("blob"), queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "failed to list trails", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trails": trails})
}

func (s *Server) handleBuriedTrails(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	trails, err := s.svc.Trails.Buried(r.Context(), tenantID(r), includeArchived, queryInt(r, "limit", 0))
	if err != nil {
		respondStorageError(w, "failed to list buried trails", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trails": trails})
}

func (s *Server) handleTrailHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.svc.Trails.Health(r.Context(), tenantID(r))
	if err != nil {
		respondStorageError(w, "failed to read trail health", err)
		return
	}
	respondJSON(w, http.StatusOK, health)
}

func (s *Server) handleTrailForecast(w http.ResponseWriter, r *http.Request) {
	forecasts, err := s.svc.Trails.Forecast(r.Context(), tenantID(r), time.Now())
	if err != nil {
		respondStorageError(w, "failed to compute decay forecast", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"forecasts": forecasts})
}

type resurrectRequest struct {
	TrailID    string `json:"trail_id,omitempty"`
	SourceBlob string `json:"source_blob,omitempty"`
	TargetBlob string `json:"target_blob,omitempty"`
}

func (s *Server) handleResurrect(w http.ResponseWriter, r *http.Request) {
	var req resurrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	var trail *types.Trail
	var err error
	switch {
	case req.TrailID != "":
		trail, err = s.svc.Trails.Resurrect(r.Context(), tenantID(r), req.TrailID, time.Now())
	case req.SourceBlob != "" && req.TargetBlob != "":
		trail, err = s.svc.Trails.ResurrectByPair(r.Context(), tenantID(r), req.SourceBlob, req.TargetBlob, time.Now())
	default:
		respondError(w, http.StatusBadRequest, "trail_id or source_blob+target_blob required", nil)
		return
	}
	if err != nil {
		respondStorageError(w, "failed to resurrect trail", err)
		return
	}
	respondJSON(w, http.StatusOK, trail)
}

// --- links ---

type createLinkRequest struct {
	SourceBlob   string  `json:"source_blob"`
	TargetBlob   string  `json:"target_blob"`
	SourceBranch string  `json:"source_branch"`
	TargetBranch string  `json:"target_branch"`
	LinkType     string  `json:"link_type,omitempty"`
	Weight       float64 `json:"weight,omitempty"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	link, err := s.svc.Links.Create(r.Context(), engine.LinkRequest{
		TenantID:     tenantID(r),
		SourceBlob:   req.SourceBlob,
		TargetBlob:   req.TargetBlob,
		SourceBranch: req.SourceBranch,
		TargetBranch: req.TargetBranch,
		LinkType:     req.LinkType,
		Weight:       req.Weight,
		Reasoning:    req.Reasoning,
	})
	if err != nil {
		respondStorageError(w, "failed to create link", err)
		return
	}
	respondJSON(w, http.StatusCreated, link)
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	links, err := s.svc.Links.List(r.Context(), tenantID(r), storage.LinkFilter{
		Blob:     q.Get("blob"),
		Branch:   q.Get("branch"),
		LinkType: q.Get("link_type"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		respondStorageError(w, "failed to list links", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"links": links})
}

// --- checkpoints ---

func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var cp types.Checkpoint
	if err := json.NewDecoder(r.Body).Decode(&cp); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if err := s.svc.Checkpoints.Save(r.Context(), tenantID(r), cp); err != nil {
		respondStorageError(w, "failed to save checkpoint", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"task_id": cp.TaskID})
}

func (s *Server) handleResumeCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.svc.Checkpoints.Resume(r.Context(), tenantID(r), r.PathValue("task"))
	if err != nil {
		respondStorageError(w, "failed to resume checkpoint", err)
		return
	}
	respondJSON(w, http.StatusOK, cp)
}

func (s *Server) handleClearCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Checkpoints.Clear(r.Context(), tenantID(r), r.PathValue("task")); err != nil {
		respondStorageError(w, "failed to clear checkpoint", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
