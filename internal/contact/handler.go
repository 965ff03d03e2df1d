// ABOUTME: HTTP handlers for the contact form and its admin listing
// ABOUTME: Accepts form-encoded or JSON submissions

package contact

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/2389/coven-relay/internal/metrics"
)

const maxBodyBytes = 1 << 16

// Handler serves POST /contact and GET /admin/contacts.
type Handler struct {
	log     *Log
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHandler(log *Log, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		log:     log,
		metrics: m,
		logger:  logger.With("component", "contact"),
	}
}

// HandleSubmit stores one submission and replies with a plain "Success".
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sub Submission
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form data", http.StatusBadRequest)
			return
		}
		sub.Name = r.PostFormValue("name")
		sub.Email = r.PostFormValue("email")
		sub.Message = r.PostFormValue("message")
	}

	if _, err := h.log.Add(r.Context(), sub); err != nil {
		if errors.Is(err, ErrInvalidSubmission) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "could not save message", http.StatusInternalServerError)
		return
	}
	h.metrics.ContactStored()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Success"))
}

// HandleList returns every submission as a JSON array.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.log.List(r.Context())
	if err != nil {
		h.logger.Error("failed to read contact log", "error", err)
		http.Error(w, "could not read messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}
