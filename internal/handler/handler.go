package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	maxImageSize = 10 << 20
	maxBodySize  = 1 << 20
)

// Handler serves the found-card HTTP API
type Handler struct {
	svc *service.Service
	log *logrus.Logger
	cfg *config.Config
}

// NewHandler initializes a new handler
func NewHandler(svc *service.Service, log *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{svc: svc, log: log, cfg: cfg}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps service errors onto status codes; fallback is the
// generic message for anything unexpected
func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: inputErr.Message})
	case errors.Is(err, service.ErrCardNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Card not found"})
	default:
		h.log.WithError(err).Error(fallback)
		resp := errorResponse{Error: fallback}
		if !h.cfg.IsProduction() {
			resp.Details = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// readFields accepts a JSON object or a urlencoded form; box firmware posts forms
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
		fields := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil
	}

	// numbers keep their literal digits so a numeric redId stays a redId
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = strconv.FormatBool(val)
		}
	}
	return fields, nil
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Malformed request body", Details: err.Error()})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Info describes the API
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Lost card intake API",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"health":  "/health",
			"metrics": "/metrics",
			"api": map[string]string{
				"POST /api/found-card-photo":     "Upload a photo of a found card",
				"POST /api/found-card-redid":     "Report a found card by RedID (drop box)",
				"POST /api/pickup-request":       "Redeem a pickup code",
				"GET /api/cards/{id}":            "Get card details by id or reference code",
				"GET /api/cards":                 "List cards (admin)",
				"POST /api/cards/{id}/set-email": "Assign an owner email (admin)",
				"POST /api/admin/login":          "Obtain an admin token",
				"POST /api/admin/test-email":     "Send a test notification (admin)",
			},
		},
	})
}
