package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/directory"
	"github.com/Dan9191/lostcard-service/internal/metrics"
	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/Dan9191/lostcard-service/internal/utils"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput is the class of every *InputError
	ErrInvalidInput = errors.New("invalid input")
	// ErrCardNotFound is returned when no card matches an id or reference code
	ErrCardNotFound = errors.New("card not found")
	// ErrInvalidCredentials is returned for a failed admin login
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InputError describes a request the caller must fix
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

func invalidInput(msg string) error {
	return &InputError{Message: msg}
}

// Extractor reads identifying fields from a card photo; it never fails
type Extractor interface {
	Extract(ctx context.Context, image []byte) models.ExtractedInfo
}

// Notifier delivers the found-card message to an owner
type Notifier interface {
	NotifyFoundCard(ctx context.Context, owner models.Owner, card *models.Card) error
}

// CodeSignaler hands pickup codes to the drop boxes, fire-and-forget
type CodeSignaler interface {
	Enqueue(pickupCode, boxID, cardID string)
}

// Dependencies are the collaborators the service coordinates
type Dependencies struct {
	Store     repository.CardStore
	Extractor Extractor
	Directory directory.Directory
	Notifier  Notifier
	Signals   CodeSignaler
	Metrics   *metrics.Metrics
}

// Service handles business logic
type Service struct {
	store     repository.CardStore
	extractor Extractor
	directory directory.Directory
	notifier  Notifier
	signals   CodeSignaler
	metrics   *metrics.Metrics
	log       *logrus.Logger
	config    *config.Config

	newPickupCode func() (string, error)
	now           func() time.Time
}

// NewService initializes a new service
func NewService(deps Dependencies, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		store:         deps.Store,
		extractor:     deps.Extractor,
		directory:     deps.Directory,
		notifier:      deps.Notifier,
		signals:       deps.Signals,
		metrics:       deps.Metrics,
		log:           log,
		config:        cfg,
		newPickupCode: utils.GeneratePickupCode,
		now:           time.Now,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
