package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/Dan9191/lostcard-service/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SetEmailResult reports the outcome of a manual email assignment
type SetEmailResult struct {
	Sent    bool
	Message string
	Card    *models.Card
}

// TestEmailResult reports the outcome of a test notification
type TestEmailResult struct {
	Sent      bool
	Recipient string
	Card      *models.Card
}

// GetCard finds a card by full id, falling back to its reference code
func (s *Service) GetCard(ctx context.Context, idOrReference string) (*models.Card, error) {
	card, err := s.store.FindByID(ctx, idOrReference)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	card, err = s.store.FindByReferenceCode(ctx, idOrReference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListQuery narrows the admin listing; empty fields match everything
type ListQuery struct {
	Status string
	Source string
	BoxID  string
}

// ListCards returns the cards matching q in creation order
func (s *Service) ListCards(ctx context.Context, q ListQuery) ([]*models.Card, error) {
	var filter models.CardFilter
	if v := strings.TrimSpace(q.Status); v != "" {
		filter.Status = models.Ptr(models.Status(v))
	}
	if v := strings.TrimSpace(q.Source); v != "" {
		filter.Source = models.Ptr(models.Source(v))
	}
	if v := strings.TrimSpace(q.BoxID); v != "" {
		filter.BoxID = &v
	}
	return s.store.GetAll(ctx, filter)
}

// SetEmail lets an operator complete a lookup automation could not resolve
func (s *Service) SetEmail(ctx context.Context, id, email string) (*SetEmailResult, error) {
	email = strings.TrimSpace(email)
	if !utils.IsValidEmail(email) {
		return nil, invalidInput("Valid email address is required")
	}

	card, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	if card.Status != models.StatusWaitingForEmail {
		return nil, invalidInput(fmt.Sprintf("Card is not waiting for email. Current status: %s", card.Status))
	}

	log := s.log.WithFields(logrus.Fields{"card_id": card.ID, "email": email})

	patch := models.CardPatch{Email: &email}
	newCode := card.BoxID != nil && card.PickupCode == nil
	if newCode {
		code, err := s.assignPickupCode(ctx, *card.BoxID)
		if err != nil {
			return nil, err
		}
		patch.PickupCode = &code
	}
	card, err = s.store.Update(ctx, card.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to save email: %w", err)
	}
	if newCode {
		s.signalCode(card)
	}

	fullName := models.Deref(card.FullName)
	if fullName == "" {
		fullName = "Student"
	}
	owner := models.Owner{Email: email, FullName: fullName, RedID: models.Deref(card.RedID)}
	log.Info("Sending notification for manually assigned email")

	if !s.notify(ctx, owner, card) {
		return &SetEmailResult{
			Message: "Email address saved but failed to send email. Check email delivery configuration.",
			Card:    card,
		}, nil
	}

	updated, err := s.store.Update(ctx, card.ID, models.CardPatch{
		Status:       models.Ptr(models.StatusEmailSent),
		ExpectStatus: models.Ptr(models.StatusWaitingForEmail),
	})
	if err != nil {
		log.WithError(err).Warn("Email sent but status not updated")
		updated, err = s.store.FindByID(ctx, card.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload card: %w", err)
		}
	}
	return &SetEmailResult{Sent: true, Message: "Email sent successfully", Card: updated}, nil
}

// SendTestEmail sends a sample notification for a dummy card
func (s *Service) SendTestEmail(ctx context.Context, to, name string) (*TestEmailResult, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, invalidInput("Please provide toEmail in request body")
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Test User"
	}

	code, err := s.newPickupCode()
	if err != nil {
		return nil, err
	}
	card := &models.Card{
		ID:                  "test-" + uuid.NewString(),
		Source:              models.SourceWeb,
		BoxID:               models.Ptr(models.BoxIDs[0]),
		PickupCode:          &code,
		LocationDescription: models.Ptr("Test Location - Email Test"),
		Status:              models.StatusWaitingForEmail,
		CreatedAt:           s.now().UTC(),
	}

	sent := s.notify(ctx, models.Owner{Email: to, FullName: name}, card)
	return &TestEmailResult{Sent: sent, Recipient: to, Card: card}, nil
}
