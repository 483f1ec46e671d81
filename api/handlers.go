package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cipherd/core"
	"cipherd/encryption"
	"cipherd/metrics"
	"cipherd/storage"
)

const (
	defaultPageSize    = 10
	healthCheckTimeout = 2 * time.Second
)

// LogItem is the wire form of a log record. Timestamp is in epoch seconds.
type LogItem struct {
	ID        string `json:"id" yaml:"id"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	IP        string `json:"ip" yaml:"ip"`
	Data      string `json:"data" yaml:"data"`
}

// NewLogItem converts a stored record to its wire form
func NewLogItem(rec core.LogRecord) LogItem {
	return LogItem{
		ID:        rec.ID,
		Timestamp: rec.Timestamp.Unix(),
		IP:        rec.IP,
		Data:      rec.Data,
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (a *API) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (a *API) encrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if !decodeJSONBodyWithLimit(w, r, &req, a.config.Server.BodyLimit, a.logger) {
		return
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error(), err, a.logger)
		return
	}

	ciphertext, err := encryption.Encrypt(req.Key, *req.Data)
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("encrypt", cryptoOutcome(err)).Inc()
		if errors.Is(err, encryption.ErrMessageTooLong) {
			writeError(w, http.StatusBadRequest, "Data too long for key size", err, a.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "Encryption failed: invalid key or data", err, a.logger)
		return
	}

	metrics.CryptoOperations.WithLabelValues("encrypt", "success").Inc()
	a.respondJSON(w, CryptoResponse{Data: ciphertext}, http.StatusOK)
}

func (a *API) decrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if !decodeJSONBodyWithLimit(w, r, &req, a.config.Server.BodyLimit, a.logger) {
		return
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error(), err, a.logger)
		return
	}

	plaintext, err := encryption.Decrypt(req.Key, req.Data)
	if err != nil {
		metrics.CryptoOperations.WithLabelValues("decrypt", cryptoOutcome(err)).Inc()
		writeError(w, http.StatusBadRequest, "Decryption failed: invalid key or data", err, a.logger)
		return
	}

	metrics.CryptoOperations.WithLabelValues("decrypt", "success").Inc()
	a.respondJSON(w, CryptoResponse{Data: plaintext}, http.StatusOK)
}

func cryptoOutcome(err error) string {
	switch {
	case errors.Is(err, encryption.ErrInvalidKey), errors.Is(err, encryption.ErrNotRSAKey):
		return "invalid_key"
	case errors.Is(err, encryption.ErrInvalidCiphertext):
		return "invalid_ciphertext"
	case errors.Is(err, encryption.ErrMessageTooLong):
		return "too_long"
	default:
		return "error"
	}
}

// getLogs serves one page of the request log, oldest first.
// The total row count is returned in X-Total-Count when available.
func (a *API) getLogs(w http.ResponseWriter, r *http.Request) {
	size, offset, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), err, a.logger)
		return
	}
	if a.logStorage == nil {
		writeError(w, http.StatusServiceUnavailable, "Log storage not available", nil, a.logger)
		return
	}

	records, err := a.logStorage.ListLogs(r.Context(), size, offset)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error(), err, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to retrieve logs", err, a.logger)
		return
	}

	if total, err := a.logStorage.CountLogs(r.Context()); err == nil {
		w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	} else {
		a.logger.Warnw("Failed to count logs", "error", err)
	}

	items := make([]LogItem, 0, len(records))
	for _, rec := range records {
		items = append(items, NewLogItem(rec))
	}
	a.respondJSON(w, items, http.StatusOK)
}

// parsePage reads size and offset from the query string, applying defaults
func parsePage(r *http.Request) (int, int, error) {
	query := r.URL.Query()
	size, offset := defaultPageSize, 0

	if s := query.Get("size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("size must be an integer")
		}
		size = v
	}
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("offset must be an integer")
		}
		offset = v
	}

	if err := storage.ValidatePage(size, offset); err != nil {
		return 0, 0, err
	}
	return size, offset, nil
}

// healthCheck reports degraded with 503 when storage cannot be reached
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := a.health.HealthCheck(ctx); err != nil {
			a.logger.Warnw("Health check failed", "error", err)
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	a.respondJSON(w, resp, status)
}
