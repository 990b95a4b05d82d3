package handler

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
	"github.com/XIAA25/queueing-system-home-arcade/internal/engine"
	"github.com/XIAA25/queueing-system-home-arcade/internal/websocket"
)

// AdminTokenHeader carries the shared administrative token. The gateway
// performs the capability check; the engine itself never sees credentials.
const AdminTokenHeader = "X-Admin-Token"

// Handler provides the HTTP API over the queue engine
type Handler struct {
	engine     *engine.Engine
	hub        *websocket.Hub
	adminToken string
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(eng *engine.Engine, hub *websocket.Hub, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		engine:     eng,
		hub:        hub,
		adminToken: adminToken,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// participantRequest is the body of every participant-scoped action.
type participantRequest struct {
	Participant string `json:"participant"`
}

// swapRequest is the body of the swap-places action.
type swapRequest struct {
	Participant string `json:"participant"`
	Target      string `json:"target"`
}

// reorderRequest is the body of the admin queue-reorder action.
type reorderRequest struct {
	Order []string `json:"order"`
}

// pauseRequest is the body of the admin pause toggle.
type pauseRequest struct {
	Paused bool `json:"paused"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/machines", h.ListMachines)

		r.Route("/machines/{machine}", func(r chi.Router) {
			r.Get("/", h.GetMachine)
			r.Post("/join", h.Join)
			r.Post("/accept", h.Accept)
			r.Post("/finish", h.Finish)
			r.Post("/skip", h.Skip)
			r.Post("/leave", h.Leave)
			r.Post("/swap", h.SwapPlaces)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/pause", h.SetPaused)
			r.Post("/machines/{machine}/holder", h.ForceSetHolder)
			r.Post("/machines/{machine}/kick", h.KickHolder)
			r.Post("/machines/{machine}/queue", h.AddToQueue)
			r.Delete("/machines/{machine}/queue/{participant}", h.RemoveFromQueue)
			r.Put("/machines/{machine}/queue", h.ReorderQueue)
			r.Post("/participants/{participant}/reset", h.ResetStats)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Admin-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates administrative routes behind the shared token.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(r.Header.Get(AdminTokenHeader)), []byte(h.adminToken)) != 1 {
			h.writeError(w, http.StatusForbidden, domain.ErrInvalidRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeEngineError maps domain errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case err == domain.ErrPaused:
		h.writeError(w, http.StatusLocked, err)
	case err == domain.ErrCooldownActive:
		h.writeError(w, http.StatusTooManyRequests, err)
	case err == domain.ErrInvalidRequest:
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("engine operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func (h *Handler) decodeParticipant(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Participant == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return "", false
	}
	return req.Participant, true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetState returns the full snapshot, expiring overdue turns first.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Sweep(r.Context()); err != nil {
		h.logger.Warn("expiry sweep failed", "error", err)
	}
	h.writeSuccess(w, h.engine.Snapshot())
}

// ListMachines returns all machine views.
func (h *Handler) ListMachines(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Sweep(r.Context()); err != nil {
		h.logger.Warn("expiry sweep failed", "error", err)
	}
	h.writeSuccess(w, h.engine.Snapshot().Machines)
}

// GetMachine returns one machine's view.
func (h *Handler) GetMachine(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Sweep(r.Context()); err != nil {
		h.logger.Warn("expiry sweep failed", "error", err)
	}
	snap := h.engine.Snapshot()
	m := snap.Machine(chi.URLParam(r, "machine"))
	if m == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrUnknownMachine)
		return
	}
	h.writeSuccess(w, m)
}

// Join adds a participant to a machine's queue.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.Join(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "queued"})
}

// Accept confirms a pending turn offer.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.Accept(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "playing"})
}

// Finish ends an active turn and reports its duration.
func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	elapsed, err := h.engine.Finish(r.Context(), chi.URLParam(r, "machine"), participant)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"status":       "finished",
		"play_seconds": elapsed.Seconds(),
	})
}

// Skip forfeits a pending turn offer.
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.Skip(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "skipped"})
}

// Leave withdraws a participant from a machine.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.Leave(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "left"})
}

// SwapPlaces exchanges two queue positions.
func (h *Handler) SwapPlaces(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Participant == "" || req.Target == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.engine.SwapPlaces(r.Context(), chi.URLParam(r, "machine"), req.Participant, req.Target); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "swapped"})
}

// SetPaused toggles the global pause.
func (h *Handler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.engine.SetPaused(r.Context(), req.Paused); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]bool{"paused": req.Paused})
}

// ForceSetHolder installs a participant as a machine's active holder.
func (h *Handler) ForceSetHolder(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.ForceSetHolder(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "playing"})
}

// KickHolder removes a machine's current holder.
func (h *Handler) KickHolder(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.KickHolder(r.Context(), chi.URLParam(r, "machine")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "kicked"})
}

// AddToQueue inserts a participant into a queue, bypassing pause and
// cooldown checks.
func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.decodeParticipant(w, r)
	if !ok {
		return
	}
	if err := h.engine.AddToQueue(r.Context(), chi.URLParam(r, "machine"), participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "queued"})
}

// RemoveFromQueue drops a participant from a queue.
func (h *Handler) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	machine := chi.URLParam(r, "machine")
	participant := chi.URLParam(r, "participant")
	if err := h.engine.RemoveFromQueue(r.Context(), machine, participant); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "removed"})
}

// ReorderQueue replaces a machine's queue order.
func (h *Handler) ReorderQueue(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.engine.ReorderQueue(r.Context(), chi.URLParam(r, "machine"), req.Order); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "reordered"})
}

// ResetStats soft-resets a participant's counters.
func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetStats(r.Context(), chi.URLParam(r, "participant")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "reset"})
}
