package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/txn-watch/internal/domain"
)

// MonitorService is the part of the monitor use case served over HTTP.
type MonitorService interface {
	GetActiveList(thresholdSeconds float64, filter string) []domain.TxnView
	GetTransaction(id string) (domain.TxnDetail, error)
	GetStats() domain.Stats
	RemoveTransaction(id string) bool
	ClearAll() int
	SetAutoRemove(enabled bool)
	SetLingerSeconds(n int)
	SetPaused(paused bool)
	Settings() domain.Settings
}

// StreamTarget switches the inbound connection.
type StreamTarget interface {
	Retarget(target string) error
	Target() string
}

// MonitorHandler serves the transaction monitor API.
type MonitorHandler struct {
	monitor MonitorService
	stream  StreamTarget
	logger  *slog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. stream may be nil, in which
// case the stream endpoints answer 503.
func NewMonitorHandler(monitor MonitorService, stream StreamTarget, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, stream: stream, logger: logger}
}

// ListTransactions returns the projected transaction list.
// GET /api/transactions?threshold={seconds}&filter={text}
func (h *MonitorHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	threshold := 0.0
	if s := r.URL.Query().Get("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			http.Error(w, "threshold must be a non-negative number of seconds", http.StatusBadRequest)
			return
		}
		threshold = v
	}

	rows := h.monitor.GetActiveList(threshold, r.URL.Query().Get("filter"))
	respondWithJSON(w, h.logger, http.StatusOK, rows)
}

// GetTransaction returns one transaction with its history.
// GET /api/transactions/{tid}
func (h *MonitorHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	detail, err := h.monitor.GetTransaction(chi.URLParam(r, "tid"))
	if errors.Is(err, domain.ErrTransactionNotFound) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get transaction", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, detail)
}

// DeleteTransaction removes one transaction.
// DELETE /api/transactions/{tid}
func (h *MonitorHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.RemoveTransaction(chi.URLParam(r, "tid")) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearTransactions removes every tracked transaction.
// DELETE /api/transactions
func (h *MonitorHandler) ClearTransactions(w http.ResponseWriter, r *http.Request) {
	n := h.monitor.ClearAll()
	respondWithJSON(w, h.logger, http.StatusOK, map[string]int{"removed": n})
}

// GetStats returns the tracker summary.
// GET /api/stats
func (h *MonitorHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.monitor.GetStats())
}

// GetSettings returns the operator settings.
// GET /api/settings
func (h *MonitorHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.monitor.Settings())
}

// UpdateSettings applies the fields present in the request body.
// PATCH /api/settings
func (h *MonitorHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AutoRemove    *bool `json:"auto_remove"`
		LingerSeconds *int  `json:"linger_seconds"`
		Paused        *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if payload.AutoRemove != nil {
		h.monitor.SetAutoRemove(*payload.AutoRemove)
	}
	if payload.LingerSeconds != nil {
		h.monitor.SetLingerSeconds(*payload.LingerSeconds)
	}
	if payload.Paused != nil {
		h.monitor.SetPaused(*payload.Paused)
	}

	respondWithJSON(w, h.logger, http.StatusOK, h.monitor.Settings())
}

// GetStream returns the current connection target.
// GET /api/stream
func (h *MonitorHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		http.Error(w, "stream control unavailable", http.StatusServiceUnavailable)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"url": h.stream.Target()})
}

// SetStream switches the inbound connection to a new target.
// PUT /api/stream
func (h *MonitorHandler) SetStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		http.Error(w, "stream control unavailable", http.StatusServiceUnavailable)
		return
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(payload.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		http.Error(w, "url must be a ws:// or wss:// address", http.StatusBadRequest)
		return
	}

	if err := h.stream.Retarget(payload.URL); err != nil {
		h.logger.Error("failed to retarget stream", "error", err)
		http.Error(w, "stream is not running", http.StatusConflict)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"url": payload.URL})
}

// HealthCheck is a simple health check endpoint.
func (h *MonitorHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
