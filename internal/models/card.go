package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a found card
type Status string

const (
	StatusWaitingForEmail Status = "waiting_for_email"
	StatusEmailSent       Status = "email_sent"
	StatusPickedUp        Status = "picked_up"
)

// Source tells where a card report came from
type Source string

const (
	SourceWeb Source = "web"
	SourceBox Source = "box"
)

// BoxIDs lists the physical drop boxes
var BoxIDs = []string{"BOX_1", "BOX_2", "BOX_3"}

// IsValidBoxID reports whether id names a known drop box
func IsValidBoxID(id string) bool {
	for _, b := range BoxIDs {
		if b == id {
			return true
		}
	}
	return false
}

// Card represents one found-card incident
type Card struct {
	ID                  string     `json:"id"`
	Source              Source     `json:"source"`
	FinderContact       *string    `json:"finderContact"`
	LocationDescription *string    `json:"locationDescription"`
	BoxID               *string    `json:"boxId"`
	PickupCode          *string    `json:"pickupCode"`
	Status              Status     `json:"status"`
	RedID               *string    `json:"redId"`
	FullName            *string    `json:"fullName"`
	Email               *string    `json:"email"`
	CreatedAt           time.Time  `json:"createdAt"`
	PickedUpAt          *time.Time `json:"pickedUpAt"`
}

// ReferenceCode is the short, human-shareable form of the card id
func (c *Card) ReferenceCode() string {
	return ReferenceCode(c.ID)
}

// ReferenceCode returns the first 8 characters of id, upper-cased
func ReferenceCode(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// Clone returns a deep copy so callers never share pointers with the store
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	out.FinderContact = cloneString(c.FinderContact)
	out.LocationDescription = cloneString(c.LocationDescription)
	out.BoxID = cloneString(c.BoxID)
	out.PickupCode = cloneString(c.PickupCode)
	out.RedID = cloneString(c.RedID)
	out.FullName = cloneString(c.FullName)
	out.Email = cloneString(c.Email)
	if c.PickedUpAt != nil {
		t := *c.PickedUpAt
		out.PickedUpAt = &t
	}
	return &out
}

// CardPatch holds a partial update; nil fields are left untouched
type CardPatch struct {
	PickupCode *string
	Status     *Status
	RedID      *string
	FullName   *string
	Email      *string
	PickedUpAt *time.Time

	// ExpectStatus makes the update conditional on the current status
	ExpectStatus *Status
}

// Apply merges the patch into c
func (p CardPatch) Apply(c *Card) {
	if p.PickupCode != nil {
		c.PickupCode = cloneString(p.PickupCode)
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.RedID != nil {
		c.RedID = cloneString(p.RedID)
	}
	if p.FullName != nil {
		c.FullName = cloneString(p.FullName)
	}
	if p.Email != nil {
		c.Email = cloneString(p.Email)
	}
	if p.PickedUpAt != nil {
		t := *p.PickedUpAt
		c.PickedUpAt = &t
	}
}

// CardFilter selects cards by exact field values; zero filter matches all
type CardFilter struct {
	Status *Status
	Source *Source
	BoxID  *string
}

// Matches reports whether c satisfies every set field of the filter
func (f CardFilter) Matches(c *Card) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Source != nil && c.Source != *f.Source {
		return false
	}
	if f.BoxID != nil && (c.BoxID == nil || *c.BoxID != *f.BoxID) {
		return false
	}
	return true
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// StringOrNil maps an empty string to nil
func StringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
