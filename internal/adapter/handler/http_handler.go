package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
	"github.com/OYH0/ChurrasControl/internal/core/service"
	"github.com/OYH0/ChurrasControl/internal/metrics"
	"github.com/OYH0/ChurrasControl/internal/notify"
)

const defaultTopN = 5

// HTTPHandler exposes the ledger commands and read models as the JSON
// surface the UI consumes, plus an SSE stream for view refresh.
type HTTPHandler struct {
	ledger       *service.LedgerService
	aggregator   *service.Aggregator
	notifier     *notify.Notifier
	adminToken   string
	historyLimit int
}

func NewHTTPHandler(ledger *service.LedgerService, aggregator *service.Aggregator, notifier *notify.Notifier, adminToken string, historyLimit int) *HTTPHandler {
	return &HTTPHandler{
		ledger:       ledger,
		aggregator:   aggregator,
		notifier:     notifier,
		adminToken:   adminToken,
		historyLimit: historyLimit,
	}
}

// Register wires the API routes onto mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/items", h.Items)
	mux.HandleFunc("/api/items/adjust", h.Adjust)
	mux.HandleFunc("/api/stock", h.Stock)
	mux.HandleFunc("/api/top-removed", h.TopRemoved)
	mux.HandleFunc("/api/history", h.History)
	mux.HandleFunc("/api/changes", h.Changes)
}

type CreateItemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type AdjustStockRequest struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Direction string `json:"direction"` // add or remove
}

type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ItemResponse struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type EventResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Action         string `json:"action"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	Timestamp      string `json:"timestamp"`
}

type RemovalResponse struct {
	Name         string `json:"name"`
	TotalRemoved int    `json:"total_removed"`
}

// principal derives the caller's capability from the request. Reads
// stay open; mutations require the admin token.
func (h *HTTPHandler) principal(r *http.Request) domain.Principal {
	return domain.Principal{
		Email:     r.Header.Get("X-User-Email"),
		CanMutate: h.adminToken != "" && r.Header.Get("X-Api-Token") == h.adminToken,
	}
}

func (h *HTTPHandler) Items(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req CreateItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "invalid request body"})
			return
		}
		if _, err := h.ledger.CreateItem(r.Context(), h.principal(r), req.Name, req.Quantity); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, MutationResponse{Success: true, Message: "item created"})

	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		if name == "" {
			writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "name is required"})
			return
		}
		if _, err := h.ledger.DeleteItem(r.Context(), h.principal(r), name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MutationResponse{Success: true, Message: "item deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "invalid request body"})
		return
	}

	var err error
	var message string
	switch req.Direction {
	case "add":
		_, err = h.ledger.AddStock(r.Context(), h.principal(r), req.Name, req.Quantity)
		message = "stock added"
	case "remove":
		_, err = h.ledger.RemoveStock(r.Context(), h.principal(r), req.Name, req.Quantity)
		message = "stock removed"
	default:
		writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "direction must be add or remove"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Success: true, Message: message})
}

func (h *HTTPHandler) Stock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.aggregator.CurrentStock(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("sort") == "quantity" {
		items = service.SortByQuantityDesc(items)
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, ItemResponse{Name: item.Name, Quantity: item.Quantity})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) TopRemoved(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n := defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "n must be an integer"})
			return
		}
		n = parsed
	}

	totals, err := h.aggregator.TopRemoved(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]RemovalResponse, 0, len(totals))
	for _, t := range totals {
		resp = append(resp, RemovalResponse{Name: t.ItemName, TotalRemoved: t.TotalRemoved})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, MutationResponse{Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	events, err := h.aggregator.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, EventResponse{
			ID:             ev.ID,
			Name:           ev.ItemName,
			Action:         string(ev.Action),
			Quantity:       ev.Delta,
			QuantityBefore: ev.QuantityBefore,
			Timestamp:      ev.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Changes streams the payloadless change signal as server-sent events.
// Every renderer (table, charts, history feed) subscribes the same way
// and re-queries the read models on each signal.
func (h *HTTPHandler) Changes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.notifier.Subscribe()
	defer cancel()
	metrics.ChangeSubscribers.Inc()
	defer metrics.ChangeSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprint(w, "event: change\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
		message = "mutation not authorized"
	}

	writeJSON(w, status, MutationResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
