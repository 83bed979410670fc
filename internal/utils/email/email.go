package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when no SMTP host is set
var ErrNotConfigured = errors.New("email delivery is not configured")

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// NotifyFoundCard tells the owner their card was found and how to collect it
func (s *Sender) NotifyFoundCard(ctx context.Context, owner models.Owner, card *models.Card) error {
	if s.cfg.SMTPHost == "" {
		return ErrNotConfigured
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{owner.Email}
	e.Subject = "Your student ID card has been found"
	e.Text = []byte(foundCardBody(owner, card))

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	// SMTP has no context support; the send goroutine finishes on its own after a timeout
	done := make(chan error, 1)
	go func() { done <- s.send(e, addr, auth) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.logger.Errorf("Failed to send found-card email to %s: %v", owner.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", owner.Email, e.Subject)
	return nil
}

func foundCardBody(owner models.Owner, card *models.Card) string {
	name := owner.FullName
	if name == "" {
		name = "Student"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString("Good news: someone found your student ID card and reported it to the lost and found.\n\n")
	if card.LocationDescription != nil && *card.LocationDescription != "" {
		fmt.Fprintf(&b, "Where it was found: %s\n", *card.LocationDescription)
	}
	if card.BoxID != nil && card.PickupCode != nil {
		fmt.Fprintf(&b, "Your card is waiting in drop box %s.\n", *card.BoxID)
		fmt.Fprintf(&b, "Enter pickup code %s on the box keypad to open it.\n", *card.PickupCode)
	} else {
		b.WriteString("Please visit the lost and found desk to collect it.\n")
	}
	if card.FinderContact != nil && *card.FinderContact != "" {
		fmt.Fprintf(&b, "The finder left this contact: %s\n", *card.FinderContact)
	}
	fmt.Fprintf(&b, "\nReference ID: %s\n", card.ReferenceCode())
	b.WriteString("\nBest regards,\nLost & Found")
	return b.String()
}
