package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps cards in process; all access is serialized by mu
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[string]*models.Card
	order []string
	now   func() time.Time
	newID func() string
}

// NewMemoryStore initializes an empty in-memory card store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards: make(map[string]*models.Card),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Create stores a copy of card under a fresh id
func (s *MemoryStore) Create(_ context.Context, card models.Card) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := card.Clone()
	stored.ID = s.newID()
	for _, exists := s.cards[stored.ID]; exists; _, exists = s.cards[stored.ID] {
		stored.ID = s.newID()
	}
	stored.CreatedAt = s.now().UTC()
	if stored.Status == "" {
		stored.Status = models.StatusWaitingForEmail
	}
	s.cards[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

// FindByID retrieves a card by its full id
func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return card.Clone(), nil
}

// FindByReferenceCode retrieves the first card, by creation order, whose id starts with code
func (s *MemoryStore) FindByReferenceCode(_ context.Context, code string) (*models.Card, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if models.ReferenceCode(id) == code {
			return s.cards[id].Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// FindByPickupCode prefers a card that has not been picked up yet, so a
// recycled code resolves to the card that currently holds it
func (s *MemoryStore) FindByPickupCode(_ context.Context, code, boxID string) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var redeemed *models.Card
	for _, id := range s.order {
		card := s.cards[id]
		if card.PickupCode == nil || card.BoxID == nil {
			continue
		}
		if *card.PickupCode != code || *card.BoxID != boxID {
			continue
		}
		if card.Status != models.StatusPickedUp {
			return card.Clone(), nil
		}
		if redeemed == nil {
			redeemed = card
		}
	}
	if redeemed == nil {
		return nil, ErrNotFound
	}
	return redeemed.Clone(), nil
}

// Update merges patch into the stored card
func (s *MemoryStore) Update(_ context.Context, id string, patch models.CardPatch) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkExpected(card, patch); err != nil {
		return nil, err
	}
	patch.Apply(card)
	return card.Clone(), nil
}

// GetAll lists cards matching filter in creation order
func (s *MemoryStore) GetAll(_ context.Context, filter models.CardFilter) ([]*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Card, 0, len(s.order))
	for _, id := range s.order {
		if card := s.cards[id]; filter.Matches(card) {
			out = append(out, card.Clone())
		}
	}
	return out, nil
}
