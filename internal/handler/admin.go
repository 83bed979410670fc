package handler

import (
	"errors"
	"net/http"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/service"
	"github.com/gorilla/mux"
)

type setEmailResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Card    *models.Card `json:"card"`
}

type testEmailResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Recipient string       `json:"recipient"`
	Card      *models.Card `json:"card,omitempty"`
}

// Login handles operator authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	token, err := h.svc.Login(fields["password"])
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		h.writeError(w, err, "Failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// SetEmail handles POST /api/cards/{id}/set-email
func (h *Handler) SetEmail(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.svc.SetEmail(r.Context(), mux.Vars(r)["id"], fields["email"])
	if err != nil {
		h.writeError(w, err, "Failed to set email and send notification")
		return
	}

	status := http.StatusOK
	if !res.Sent {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, setEmailResponse{Success: res.Sent, Message: res.Message, Card: res.Card})
}

// TestEmail handles POST /api/admin/test-email
func (h *Handler) TestEmail(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.svc.SendTestEmail(r.Context(), fields["toEmail"], fields["testName"])
	if err != nil {
		h.writeError(w, err, "Failed to send test email")
		return
	}

	if !res.Sent {
		writeJSON(w, http.StatusBadGateway, testEmailResponse{
			Message:   "Failed to send test email. Check server logs and email delivery configuration.",
			Recipient: res.Recipient,
		})
		return
	}
	writeJSON(w, http.StatusOK, testEmailResponse{
		Success:   true,
		Message:   "Test email sent successfully!",
		Recipient: res.Recipient,
		Card:      res.Card,
	})
}
