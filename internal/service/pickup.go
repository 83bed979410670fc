package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/Dan9191/lostcard-service/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	ReasonInvalidCode     = "invalid_code"
	ReasonAlreadyPickedUp = "already_picked_up"
)

// PickupResult is the answer to a redemption attempt
type PickupResult struct {
	OK      bool
	Reason  string
	Message string
	CardID  string
}

// RedeemPickup marks the card holding code in boxID as picked up
func (s *Service) RedeemPickup(ctx context.Context, code, boxID string) (*PickupResult, error) {
	code, boxID = strings.TrimSpace(code), strings.TrimSpace(boxID)
	if code == "" || boxID == "" {
		return nil, invalidInput("pickupCode and boxId are required")
	}
	if !utils.IsValidPickupCode(code) {
		s.metrics.IncRedemption(ReasonInvalidCode)
		return &PickupResult{Reason: ReasonInvalidCode}, nil
	}

	// a concurrent status change is retried against the fresh record
	for attempt := 0; attempt < 3; attempt++ {
		card, err := s.store.FindByPickupCode(ctx, code, boxID)
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.IncRedemption(ReasonInvalidCode)
			return &PickupResult{Reason: ReasonInvalidCode}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find pickup code: %w", err)
		}
		if card.Status == models.StatusPickedUp {
			s.metrics.IncRedemption(ReasonAlreadyPickedUp)
			return &PickupResult{Reason: ReasonAlreadyPickedUp, CardID: card.ID}, nil
		}

		now := s.now().UTC()
		_, err = s.store.Update(ctx, card.ID, models.CardPatch{
			Status:       models.Ptr(models.StatusPickedUp),
			PickedUpAt:   &now,
			ExpectStatus: models.Ptr(card.Status),
		})
		if errors.Is(err, repository.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to mark card picked up: %w", err)
		}

		s.metrics.IncRedemption("picked_up")
		s.log.WithFields(logrus.Fields{"card_id": card.ID, "box_id": boxID}).Info("Card picked up")
		return &PickupResult{OK: true, Message: "Card has been taken out successfully", CardID: card.ID}, nil
	}
	return nil, fmt.Errorf("failed to mark card picked up: status kept changing")
}
