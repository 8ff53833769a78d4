// Package httpserver exposes the roadmap state and withdrawal workflow to UI
// consumers. Load failures never produce an error response here: the state
// carries a populated fallback timeline plus an error flag, and handlers
// return it as-is.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/incuhub/roadmap-sync/internal/auth"
	"github.com/incuhub/roadmap-sync/internal/config"
	"github.com/incuhub/roadmap-sync/internal/roadmap"
	"github.com/incuhub/roadmap-sync/internal/scheduler"
	"github.com/incuhub/roadmap-sync/internal/service"
	"github.com/incuhub/roadmap-sync/internal/store"
)

type Server struct {
	cfg     config.Config
	service *service.Service
	state   *roadmap.State
	history store.Store
	sched   *scheduler.Scheduler
	log     *zap.Logger
}

func New(cfg config.Config, svc *service.Service, state *roadmap.State, history store.Store, sched *scheduler.Scheduler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, service: svc, state: state, history: history, sched: sched, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		debugToken := ""
		if s.cfg.AllowDebugToken {
			debugToken = s.cfg.DebugToken
		}
		r.Use(auth.Middleware([]byte(s.cfg.AuthSecret), debugToken))

		r.Route("/roadmap", func(r chi.Router) {
			r.Get("/", s.handlePlatformRoadmap)
			r.Post("/reset", s.handleReset)
			r.Post("/auto-refresh", s.handleAutoRefresh)
			r.Patch("/stages/{ordinalID}", s.handlePatchStage)
			r.Get("/{ideaID}", s.handleIdeaRoadmap)
			r.Post("/{ideaID}/refresh", s.handleIdeaRefresh)
		})

		r.Route("/ideas/{ideaID}", func(r chi.Router) {
			r.Get("/withdrawals", s.handleListWithdrawals)
			r.Post("/withdraw", s.handleSubmitWithdrawal)
			r.Get("/history", s.handleHistory)
		})

		r.Post("/withdrawals/{requestID}/execute", s.handleExecuteWithdrawal)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.history.Ping(ctx); err != nil {
		status["ok"] = false
		status["store"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handlePlatformRoadmap(w http.ResponseWriter, r *http.Request) {
	if err := s.service.LoadPlatform(r.Context()); err != nil {
		s.log.Warn("platform load degraded", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleIdeaRoadmap(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "ideaID")
	if err := s.service.Sync(r.Context(), ideaID); err != nil {
		s.log.Warn("idea load degraded", zap.String("ideaId", ideaID), zap.Error(err))
	}
	if s.state.AutoRefreshEnabled() && s.sched.Target() != ideaID {
		s.sched.Start(context.Background(), ideaID)
	}
	respondJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleIdeaRefresh(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "ideaID")
	if err := s.service.Sync(r.Context(), ideaID); err != nil {
		s.log.Warn("manual refresh degraded", zap.String("ideaId", ideaID), zap.Error(err))
	}
	respondJSON(w, http.StatusOK, s.state.Snapshot())
}

type autoRefreshRequest struct {
	Enabled *bool  `json:"enabled"`
	IdeaID  string `json:"ideaId"`
}

func (s *Server) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var req autoRefreshRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var enabled bool
	if req.Enabled != nil {
		enabled = s.state.SetAutoRefresh(*req.Enabled)
	} else {
		enabled = s.state.ToggleAutoRefresh()
	}
	if enabled {
		target := req.IdeaID
		if target == "" {
			target = s.sched.Target()
		}
		s.sched.Start(context.Background(), target)
	} else {
		s.sched.Stop()
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	s.service.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchStage(w http.ResponseWriter, r *http.Request) {
	ordinalID, err := strconv.Atoi(chi.URLParam(r, "ordinalID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ordinal id")
		return
	}
	var patch roadmap.StagePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.state.PatchStage(ordinalID, patch) {
		respondError(w, http.StatusNotFound, "no stage with that ordinal id")
		return
	}
	respondJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "ideaID")
	withdrawals := s.service.SyncWithdrawals(r.Context(), ideaID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"withdrawals": withdrawals,
		"canRequest":  s.service.CanRequestWithdrawal(ideaID),
	})
}

type withdrawRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleSubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "ideaID")
	var req withdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.RequestWithdrawal(r.Context(), ideaID, req.Reason); err != nil {
		if errors.Is(err, service.ErrWithdrawalPending) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"withdrawals": s.service.Withdrawals(ideaID),
		"canRequest":  s.service.CanRequestWithdrawal(ideaID),
	})
}

type executeRequest struct {
	IdeaID string `json:"ideaId"`
}

func (s *Server) handleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.service.ExecuteWithdrawal(r.Context(), req.IdeaID, requestID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"withdrawals": s.service.Withdrawals(req.IdeaID),
			"roadmap":     s.state.Snapshot(),
		})
	case errors.Is(err, service.ErrWithdrawalNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrWithdrawalNotApproved), errors.Is(err, service.ErrWithdrawalAlreadyPaid):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "ideaID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	history, err := s.service.History(r.Context(), ideaID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
