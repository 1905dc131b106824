// Package handler exposes the bot's HTTP surface: health, the gateway
// webhook and the protected listing endpoints.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"realestate-bot/internal/domain"
	"realestate-bot/internal/inbound"
)

const (
	headerAPIKey        = "x-api-key"
	headerCorrelationID = "X-Correlation-Id"
	maxWebhookBody      = 1 << 20
	timestampLayout     = "2006-01-02T15:04:05.000Z07:00"
)

type EventRouter interface {
	Route(ctx context.Context, ev inbound.Event) inbound.Outcome
}

// Listings is the cached listing plus its manual invalidation.
type Listings interface {
	Listings(ctx context.Context) ([]domain.Property, error)
	Invalidate()
}

type Handler struct {
	router   EventRouter
	listings Listings
	secret   string
	now      func() time.Time
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type propertiesResponse struct {
	Count      int               `json:"count"`
	Properties []domain.Property `json:"propiedades"`
}

type reloadResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler wires the HTTP surface. An empty secret leaves the listing
// endpoints permanently unauthorized.
func NewHandler(router EventRouter, listings Listings, secret string) (*Handler, error) {
	if router == nil {
		return nil, errors.New("handler: router must not be nil")
	}
	if listings == nil {
		return nil, errors.New("handler: listings must not be nil")
	}
	return &Handler{router: router, listings: listings, secret: secret, now: time.Now}, nil
}

// Routes returns the service mux wrapped in the request middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /webhook/messages", h.handleWebhook)
	mux.HandleFunc("GET /properties", h.auth(h.handleProperties))
	mux.HandleFunc("POST /properties/reload", h.auth(h.handleReload))
	return withCorrelationID(mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: h.now().UTC().Format(timestampLayout)})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev inbound.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&ev); err != nil {
		slog.Warn("handler: invalid webhook body", "correlation_id", correlationID(r.Context()), "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
		return
	}
	out := h.router.Route(r.Context(), ev)
	slog.Debug("handler: webhook routed",
		"correlation_id", correlationID(r.Context()),
		"event", ev.Event,
		"status", out.Status,
		"reason", out.Reason,
	)
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.listings.Listings(r.Context())
	if err != nil {
		slog.Error("handler: load listings", "correlation_id", correlationID(r.Context()), "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "listing source unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, propertiesResponse{Count: len(props), Properties: props})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	h.listings.Invalidate()
	props, err := h.listings.Listings(r.Context())
	if err != nil {
		slog.Error("handler: reload listings", "correlation_id", correlationID(r.Context()), "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "listing source unavailable"})
		return
	}
	slog.Info("handler: listings reloaded", "count", len(props))
	writeJSON(w, http.StatusOK, reloadResponse{Status: "reloaded", Count: len(props)})
}

func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
			return
		}
		next(w, r)
	}
}

type correlationKey struct{}

func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
