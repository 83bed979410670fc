package repository

import (
	"context"
	"errors"

	"github.com/Dan9191/lostcard-service/internal/models"
)

var (
	// ErrNotFound is returned by lookups and updates for unknown cards
	ErrNotFound = errors.New("card not found")
	// ErrStatusConflict is returned when a conditional update sees a different status
	ErrStatusConflict = errors.New("card status changed")
)

// CardStore owns card records and their mutation
type CardStore interface {
	// Create assigns a fresh id and creation time and stores the card
	Create(ctx context.Context, card models.Card) (*models.Card, error)
	FindByID(ctx context.Context, id string) (*models.Card, error)
	// FindByReferenceCode matches the first 8 characters of the id, case-insensitive
	FindByReferenceCode(ctx context.Context, code string) (*models.Card, error)
	// FindByPickupCode requires both the code and the box to match
	FindByPickupCode(ctx context.Context, code, boxID string) (*models.Card, error)
	Update(ctx context.Context, id string, patch models.CardPatch) (*models.Card, error)
	// GetAll returns matching cards in creation order
	GetAll(ctx context.Context, filter models.CardFilter) ([]*models.Card, error)
}

func checkExpected(card *models.Card, patch models.CardPatch) error {
	if patch.ExpectStatus != nil && card.Status != *patch.ExpectStatus {
		return ErrStatusConflict
	}
	return nil
}
