package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/service"
	"github.com/gorilla/mux"
)

// photoFields are the accepted multipart file field names, preferred first
var photoFields = []string{"image", "cardImage"}

// PhotoResponse always carries every key; absent values encode as null
type PhotoResponse struct {
	CardID        string                `json:"cardId"`
	ReferenceCode string                `json:"referenceCode"`
	Message       string                `json:"message"`
	BoxID         *string               `json:"boxId"`
	PickupCode    *string               `json:"pickupCode"`
	RedID         *string               `json:"redId"`
	ExtractedInfo *models.ExtractedInfo `json:"extractedInfo"`
	EmailSent     bool                  `json:"emailSent"`
	EmailAddress  *string               `json:"emailAddress"`
}

type redIDResponse struct {
	CardID     string `json:"cardId"`
	PickupCode string `json:"pickupCode"`
}

type pickupResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	CardID  string `json:"cardId,omitempty"`
}

// FoundCardPhoto handles POST /api/found-card-photo
func (h *Handler) FoundCardPhoto(w http.ResponseWriter, r *http.Request) {
	sub, err := h.readPhotoSubmission(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.svc.SubmitPhoto(r.Context(), sub)
	if err != nil {
		h.writeError(w, err, "Failed to process card photo")
		return
	}

	writeJSON(w, http.StatusOK, PhotoResponse{
		CardID:        res.Card.ID,
		ReferenceCode: res.ReferenceCode,
		Message:       res.Message,
		BoxID:         res.Card.BoxID,
		PickupCode:    res.Card.PickupCode,
		RedID:         res.RedID,
		ExtractedInfo: res.ExtractedInfo,
		EmailSent:     res.EmailSent,
		EmailAddress:  res.EmailAddress,
	})
}

func (h *Handler) readPhotoSubmission(w http.ResponseWriter, r *http.Request) (service.PhotoSubmission, error) {
	var sub service.PhotoSubmission
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		fields, err := readFields(w, r)
		if err != nil {
			return sub, err
		}
		sub.FinderContact = fields["finderContact"]
		sub.LocationDescription = fields["locationDescription"]
		sub.BoxID = fields["boxId"]
		sub.ManualRedID = fields["manualRedId"]
		return sub, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+maxBodySize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		return sub, fmt.Errorf("failed to parse upload: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	sub.FinderContact = r.FormValue("finderContact")
	sub.LocationDescription = r.FormValue("locationDescription")
	sub.BoxID = r.FormValue("boxId")
	sub.ManualRedID = r.FormValue("manualRedId")

	for _, field := range photoFields {
		file, _, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return sub, fmt.Errorf("failed to read %s: %w", field, err)
		}
		sub.Image, err = readImage(file)
		if err != nil {
			return sub, err
		}
		break
	}
	return sub, nil
}

func readImage(file multipart.File) ([]byte, error) {
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageSize)
	}
	return data, nil
}

// FoundCardRedID handles POST /api/found-card-redid
func (h *Handler) FoundCardRedID(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.svc.SubmitRedID(r.Context(), fields["redId"], fields["boxId"])
	if err != nil {
		h.writeError(w, err, "Failed to process card")
		return
	}
	writeJSON(w, http.StatusOK, redIDResponse{CardID: res.Card.ID, PickupCode: res.PickupCode})
}

// PickupRequest handles POST /api/pickup-request
func (h *Handler) PickupRequest(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}

	res, err := h.svc.RedeemPickup(r.Context(), fields["pickupCode"], fields["boxId"])
	if err != nil {
		h.writeError(w, err, "Failed to process pickup request")
		return
	}
	writeJSON(w, http.StatusOK, pickupResponse{
		OK:      res.OK,
		Reason:  res.Reason,
		Message: res.Message,
		CardID:  res.CardID,
	})
}

// GetCard handles GET /api/cards/{id}; id may be a reference code
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	card, err := h.svc.GetCard(r.Context(), id)
	if errors.Is(err, service.ErrCardNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Card not found. Please check your reference code."})
		return
	}
	if err != nil {
		h.writeError(w, err, "Failed to fetch card")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ListCards handles GET /api/cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cards, err := h.svc.ListCards(r.Context(), service.ListQuery{
		Status: q.Get("status"),
		Source: q.Get("source"),
		BoxID:  q.Get("boxId"),
	})
	if err != nil {
		h.writeError(w, err, "Failed to fetch cards")
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}
