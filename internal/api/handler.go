package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-sub001/internal/mail"
	"github.com/mailgoatai/mailgoat-sub001/internal/models"
	"github.com/mailgoatai/mailgoat-sub001/internal/store"
)

// Handler exposes one-off sends and batch status over HTTP.
type Handler struct {
	Sender mail.Sender
	Store  store.BatchStore
	Log    *zap.Logger
}

// SendEmail handles POST /send: validate, deliver through the configured
// transport, answer with a message id.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := job.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Sender.Send(r.Context(), job); err != nil {
		h.Log.Error("send failed", zap.String("to", job.Recipient()), zap.Error(err))
		status := http.StatusBadGateway
		if mail.IsThrottle(err) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"id":        uuid.NewString(),
		"recipient": job.Recipient(),
		"status":    "sent",
	})
}

// GetBatch handles GET /batches/{id}: run metadata plus processed counts.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, ok, err := h.Store.GetBatch(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}

	processed, succeeded, err := h.Store.CountProcessed(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"id":         run.ID,
		"file_path":  run.FilePath,
		"total":      run.Total,
		"next_index": run.NextIndex,
		"completed":  run.Completed,
		"processed":  processed,
		"succeeded":  succeeded,
		"failed":     processed - succeeded,
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
