package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"analytics-service/internal/analytics"
	"analytics-service/internal/config"
	"analytics-service/internal/event"
	"analytics-service/internal/publisher"
	redisrepo "analytics-service/internal/repository/redis"
	"analytics-service/internal/util"

	"github.com/go-chi/chi/v5"
)

const (
	defaultWindowDays  = 7
	defaultRecentLimit = 100
	maxBodyBytes       = 64 << 10
)

// EventHandler exposes the collector endpoint and the dashboard query API.
type EventHandler struct {
	publisher *publisher.Publisher
	engine    *analytics.Engine
	rateLimit *redisrepo.RateLimitCache // optional
	rlConfig  *config.RateLimitConfig
	logger    *zap.Logger
}

func NewEventHandler(pub *publisher.Publisher, engine *analytics.Engine, rateLimit *redisrepo.RateLimitCache, rlConfig *config.RateLimitConfig, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		publisher: pub,
		engine:    engine,
		rateLimit: rateLimit,
		rlConfig:  rlConfig,
		logger:    logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RegisterRoutes registers collector and analytics routes.
func (h *EventHandler) RegisterRoutes(router chi.Router) {
	router.Post("/events", h.CollectEvent)
	router.Route("/analytics", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/events", h.GetRecentEvents)
	})
}

// CollectEvent receives a client analytics event, validates it and fans it
// out to the main and backup queues. The client is only told "accepted for
// delivery"; processing happens asynchronously.
func (h *EventHandler) CollectEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.rateLimit != nil && h.rlConfig.Enabled {
		if !h.rateLimit.Allow(ctx, clientIP(r), h.rlConfig.RequestsPerIP, h.rlConfig.Window) {
			h.respondWithJSON(w, http.StatusTooManyRequests, Response{
				Success: false,
				Error:   "rate limit exceeded",
			})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "failed to read request body",
		})
		return
	}

	evt, err := event.Decode(body)
	if err != nil {
		util.Warn("Invalid event payload received", zap.Error(err))
		h.respondWithJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid event payload",
		})
		return
	}

	evt.ServerTimestamp = time.Now().UTC()

	if !event.Validate(evt) {
		util.Warn("Event failed validation",
			zap.String("event_type", evt.EventType))
		h.respondWithJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid event payload",
		})
		return
	}

	result, err := h.publisher.Publish(ctx, evt)
	if err != nil {
		h.respondWithJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to accept event",
		})
		return
	}

	if !result.Delivered() {
		// Both sinks down: nothing holds the event, so the producer
		// must know.
		h.respondWithJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "event could not be queued",
		})
		return
	}

	h.logger.Info("Event accepted",
		zap.String("event_type", evt.EventType),
		zap.String("user_id", evt.UserID),
		zap.Bool("backup_ok", result.Backup == nil),
		zap.Bool("main_ok", result.Main == nil))

	h.respondWithJSON(w, http.StatusAccepted, Response{
		Success: true,
		Message: "event accepted",
	})
}

// GetStats returns the aggregate dashboard view for a rolling window.
// The window length comes from the days query parameter, default 7.
func (h *EventHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	days := defaultWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	stats, err := h.engine.ComputeStats(r.Context(), days)
	if err != nil {
		util.Error("Failed to compute dashboard stats", zap.Error(err))
		h.respondWithJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to fetch analytics",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: stats})
}

// GetRecentEvents returns up to limit events from today's partition.
func (h *EventHandler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.engine.RecentEvents(r.Context(), limit)
	if err != nil {
		util.Error("Failed to fetch recent events", zap.Error(err))
		h.respondWithJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to fetch events",
		})
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{Success: true, Data: events})
}

func (h *EventHandler) respondWithJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to write response", zap.Error(err))
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
