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

const maxPickupCodeAttempts = 8

// PhotoSubmission is a web or mobile found-card report
type PhotoSubmission struct {
	Image               []byte
	FinderContact       string
	LocationDescription string
	BoxID               string
	ManualRedID         string
}

// PhotoResult is everything the submitter is told about their report
type PhotoResult struct {
	Card          *models.Card
	ReferenceCode string
	Message       string
	RedID         *string
	ExtractedInfo *models.ExtractedInfo
	EmailSent     bool
	EmailAddress  *string
}

// RedIDResult is the answer to a box-originated report
type RedIDResult struct {
	Card       *models.Card
	PickupCode string
}

// contactOutcome folds the owner lookup and notification steps
type contactOutcome struct {
	Email string
	Sent  bool
}

// SubmitPhoto runs the intake pipeline for a photo report. The card is
// created before any external call, and no external failure aborts the
// submission.
func (s *Service) SubmitPhoto(ctx context.Context, sub PhotoSubmission) (*PhotoResult, error) {
	boxID := strings.TrimSpace(sub.BoxID)
	if boxID != "" && !models.IsValidBoxID(boxID) {
		return nil, invalidInput(fmt.Sprintf("boxId must be one of %s", strings.Join(models.BoxIDs, ", ")))
	}
	if len(sub.Image) == 0 && strings.TrimSpace(sub.ManualRedID) == "" {
		return nil, invalidInput("No image file provided")
	}

	var pickupCode *string
	if boxID != "" {
		code, err := s.assignPickupCode(ctx, boxID)
		if err != nil {
			return nil, err
		}
		pickupCode = &code
	}

	card, err := s.store.Create(ctx, models.Card{
		Source:              models.SourceWeb,
		FinderContact:       models.StringOrNil(strings.TrimSpace(sub.FinderContact)),
		LocationDescription: models.StringOrNil(strings.TrimSpace(sub.LocationDescription)),
		BoxID:               models.StringOrNil(boxID),
		PickupCode:          pickupCode,
		Status:              models.StatusWaitingForEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	s.metrics.IncSubmission(string(models.SourceWeb))
	log := s.log.WithFields(logrus.Fields{"card_id": card.ID, "box_id": boxID})
	log.Info("Found card reported with photo")
	s.signalCode(card)

	var extracted *models.ExtractedInfo
	if len(sub.Image) > 0 {
		info := s.extractor.Extract(ctx, sub.Image)
		extracted = &info
		s.metrics.IncExtraction(info.Found())
	}

	who := resolveIdentity(sub.ManualRedID, extracted)
	if who.known() {
		if _, err := s.store.Update(ctx, card.ID, models.CardPatch{RedID: who.RedID, FullName: who.FullName}); err != nil {
			log.WithError(err).Warn("Failed to record extracted identity")
		}
	}

	var contact contactOutcome
	if who.RedID != nil {
		contact = s.contactOwner(ctx, card.ID, *who.RedID, who.FullName)
	}

	final, err := s.store.FindByID(ctx, card.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload card: %w", err)
	}

	redID := who.RedID
	if redID == nil {
		redID = final.RedID
	}

	result := &PhotoResult{
		Card:          final,
		ReferenceCode: final.ReferenceCode(),
		Message:       buildMessage(extracted, redID, final),
		RedID:         redID,
		ExtractedInfo: extracted,
		EmailSent:     contact.Sent,
		EmailAddress:  models.StringOrNil(contact.Email),
	}
	log.WithFields(logrus.Fields{
		"red_id":     models.Deref(redID),
		"email_sent": result.EmailSent,
	}).Info("Photo report processed")
	return result, nil
}

// SubmitRedID records a card scanned at a drop box
func (s *Service) SubmitRedID(ctx context.Context, redID, boxID string) (*RedIDResult, error) {
	redID, boxID = strings.TrimSpace(redID), strings.TrimSpace(boxID)
	if redID == "" || boxID == "" {
		return nil, invalidInput("redId and boxId are required")
	}
	if !models.IsValidBoxID(boxID) {
		return nil, invalidInput(fmt.Sprintf("boxId must be one of %s", strings.Join(models.BoxIDs, ", ")))
	}

	code, err := s.assignPickupCode(ctx, boxID)
	if err != nil {
		return nil, err
	}

	card, err := s.store.Create(ctx, models.Card{
		Source:     models.SourceBox,
		RedID:      &redID,
		BoxID:      &boxID,
		PickupCode: &code,
		Status:     models.StatusWaitingForEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	s.metrics.IncSubmission(string(models.SourceBox))
	s.log.WithFields(logrus.Fields{"card_id": card.ID, "box_id": boxID}).Info("Found card reported by box")
	s.signalCode(card)

	s.contactOwner(ctx, card.ID, redID, nil)

	final, err := s.store.FindByID(ctx, card.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload card: %w", err)
	}
	return &RedIDResult{Card: final, PickupCode: code}, nil
}

// contactOwner looks the owner up and notifies them. The discovered email is
// saved even when the send fails; the status only moves on a confirmed send.
func (s *Service) contactOwner(ctx context.Context, cardID, redID string, fullName *string) contactOutcome {
	normalized := utils.NormalizeRedID(redID)
	log := s.log.WithFields(logrus.Fields{"card_id": cardID, "red_id": normalized})
	if normalized == "" {
		return contactOutcome{}
	}

	email, err := s.lookupOwner(ctx, normalized)
	if err != nil {
		log.Info("No owner email found, card stays waiting for email")
		return contactOutcome{}
	}

	card, err := s.store.FindByID(ctx, cardID)
	if err != nil {
		log.WithError(err).Error("Card vanished before notification")
		return contactOutcome{Email: email}
	}

	owner := models.Owner{Email: email, FullName: models.Deref(fullName), RedID: normalized}
	sent := s.notify(ctx, owner, card)

	patch := models.CardPatch{Email: &email, FullName: fullName}
	if sent {
		patch.Status = models.Ptr(models.StatusEmailSent)
		patch.ExpectStatus = models.Ptr(models.StatusWaitingForEmail)
	}
	_, err = s.store.Update(ctx, cardID, patch)
	if errors.Is(err, repository.ErrStatusConflict) {
		_, err = s.store.Update(ctx, cardID, models.CardPatch{Email: &email, FullName: fullName})
	}
	if err != nil {
		log.WithError(err).Error("Failed to save owner email")
	}
	return contactOutcome{Email: email, Sent: sent}
}

func (s *Service) lookupOwner(ctx context.Context, redID string) (string, error) {
	ctx, cancel := withTimeout(ctx, s.config.LookupTimeout)
	defer cancel()
	email, err := s.directory.Lookup(ctx, redID)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", fmt.Errorf("empty email for %s", redID)
	}
	return email, nil
}

// notify reports whether the message was confirmed sent; errors count as a failed send
func (s *Service) notify(ctx context.Context, owner models.Owner, card *models.Card) bool {
	ctx, cancel := withTimeout(ctx, s.config.NotifyTimeout)
	defer cancel()
	err := s.notifier.NotifyFoundCard(ctx, owner, card)
	s.metrics.IncNotification(err == nil)
	if err != nil {
		s.log.WithError(err).WithField("card_id", card.ID).Warn("Owner notification failed")
		return false
	}
	return true
}

// assignPickupCode draws codes until one is not held by an active card in the box
func (s *Service) assignPickupCode(ctx context.Context, boxID string) (string, error) {
	var code string
	for attempt := 0; attempt < maxPickupCodeAttempts; attempt++ {
		var err error
		code, err = s.newPickupCode()
		if err != nil {
			return "", err
		}
		holder, err := s.store.FindByPickupCode(ctx, code, boxID)
		if errors.Is(err, repository.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check pickup code: %w", err)
		}
		if holder.Status == models.StatusPickedUp {
			return code, nil
		}
	}
	s.log.WithField("box_id", boxID).Warn("Could not find a free pickup code, reusing an active one")
	return code, nil
}

func (s *Service) signalCode(card *models.Card) {
	if s.signals == nil || card.PickupCode == nil || card.BoxID == nil {
		return
	}
	s.signals.Enqueue(*card.PickupCode, *card.BoxID, card.ID)
}

func buildMessage(extracted *models.ExtractedInfo, redID *string, card *models.Card) string {
	msg := "Thanks! Your report has been recorded."
	if extracted.Found() {
		msg = "Thanks! We extracted information from the card."
	}
	if redID != nil && *redID != "" {
		msg += fmt.Sprintf(" Your RedID is %s.", *redID)
	}
	if card.BoxID != nil && card.PickupCode != nil {
		msg += fmt.Sprintf(" The card is stored at %s. Pickup code: %s.", *card.BoxID, *card.PickupCode)
	}
	return msg + fmt.Sprintf(" Your reference ID is %s.", card.ReferenceCode())
}
