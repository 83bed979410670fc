// Package boxsignal delivers pickup codes to the drop-box controllers.
//
// Delivery is fire-and-forget: every code is queued, sent right away when the
// transport is connected, and replayed later otherwise. Nothing here ever
// returns an error to the request that produced the code.
package boxsignal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Publisher is the transport to the box controllers
type Publisher interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

// Entry is one queued pickup code
type Entry struct {
	PickupCode string     `json:"pickupCode"`
	BoxID      string     `json:"boxId"`
	CardID     string     `json:"cardId"`
	QueuedAt   time.Time  `json:"queuedAt"`
	Sent       bool       `json:"sent"`
	SentAt     *time.Time `json:"sentAt"`

	// inFlight is set while one goroutine owns the send
	inFlight bool
}

// Observer is told about each delivery attempt
type Observer func(delivered bool)

// Queue stores pickup codes and pushes them to the boxes
type Queue struct {
	mu        sync.Mutex
	entries   []*Entry
	pub       Publisher
	subject   string
	spacing   time.Duration
	log       *logrus.Logger
	observe   Observer
	replaying atomic.Bool
}

// NewQueue creates a queue; pub may be nil until a transport is available
func NewQueue(pub Publisher, subject string, log *logrus.Logger) *Queue {
	return &Queue{pub: pub, subject: subject, log: log}
}

// SetPublisher swaps the transport and replays anything pending
func (q *Queue) SetPublisher(pub Publisher) {
	q.mu.Lock()
	q.pub = pub
	q.mu.Unlock()
	q.Replay()
}

// SetSpacing staggers replayed sends so the controller is not flooded
func (q *Queue) SetSpacing(d time.Duration) {
	q.spacing = d
}

// SetObserver registers a delivery callback, used for metrics
func (q *Queue) SetObserver(o Observer) {
	q.observe = o
}

// FormatMessage renders the line protocol the controllers understand
func FormatMessage(pickupCode, boxID string) string {
	return fmt.Sprintf("CODE:%s:%s\n", pickupCode, boxID)
}

// Enqueue stores a code and tries to deliver it immediately
func (q *Queue) Enqueue(pickupCode, boxID, cardID string) {
	fields := logrus.Fields{"pickup_code": pickupCode, "box_id": boxID, "card_id": cardID}
	if pickupCode == "" || boxID == "" {
		q.log.WithFields(fields).Warn("Invalid pickup code or box, not queued")
		return
	}

	entry := &Entry{PickupCode: pickupCode, BoxID: boxID, CardID: cardID, QueuedAt: time.Now().UTC()}
	q.mu.Lock()
	pub := q.pub
	connected := pub != nil && pub.IsConnected()
	entry.inFlight = connected
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	q.log.WithFields(fields).Info("Stored pickup code for box")

	if !connected {
		q.log.WithFields(fields).Warn("Box transport not connected, code will be sent on reconnect")
		return
	}
	q.deliver(pub, entry)
}

// Replay sends every undelivered entry and returns how many were delivered
func (q *Queue) Replay() int {
	if !q.replaying.CompareAndSwap(false, true) {
		return 0
	}
	defer q.replaying.Store(false)

	q.mu.Lock()
	pub := q.pub
	if pub == nil || !pub.IsConnected() {
		q.mu.Unlock()
		return 0
	}
	var pending []*Entry
	for _, e := range q.entries {
		if !e.Sent && !e.inFlight {
			e.inFlight = true
			pending = append(pending, e)
		}
	}
	q.mu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	q.log.Infof("Replaying %d stored pickup codes", len(pending))
	delivered := 0
	for i, e := range pending {
		if i > 0 && q.spacing > 0 {
			time.Sleep(q.spacing)
		}
		if q.deliver(pub, e) {
			delivered++
		}
	}
	return delivered
}

func (q *Queue) deliver(pub Publisher, e *Entry) bool {
	err := pub.Publish(q.subject, []byte(FormatMessage(e.PickupCode, e.BoxID)))
	if q.observe != nil {
		q.observe(err == nil)
	}
	fields := logrus.Fields{"pickup_code": e.PickupCode, "box_id": e.BoxID, "card_id": e.CardID}
	if err != nil {
		q.mu.Lock()
		e.inFlight = false
		q.mu.Unlock()
		q.log.WithFields(fields).WithError(err).Error("Failed to send pickup code to box")
		return false
	}

	now := time.Now().UTC()
	q.mu.Lock()
	e.inFlight = false
	e.Sent = true
	e.SentAt = &now
	q.mu.Unlock()
	q.log.WithFields(fields).Info("Sent pickup code to box")
	return true
}

// Entries returns a snapshot of the queue
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// Pending returns the number of undelivered codes
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if !e.Sent {
			n++
		}
	}
	return n
}

// Clear drops every stored entry
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
	q.log.Info("Cleared all stored pickup codes")
}
