package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/utils"
	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

// ErrNotFound means no owner address is known for the identifier
var ErrNotFound = errors.New("owner not found")

// Directory maps a normalized red identifier to an email address
type Directory interface {
	Lookup(ctx context.Context, redID string) (string, error)
}

// Static is an in-memory identifier to email table
type Static struct {
	entries map[string]string
}

// NewStatic builds a static directory, normalizing keys
func NewStatic(entries map[string]string) *Static {
	s := &Static{entries: make(map[string]string, len(entries))}
	for redID, email := range entries {
		s.entries[utils.NormalizeRedID(redID)] = strings.TrimSpace(email)
	}
	return s
}

// Lookup returns the email recorded for redID
func (s *Static) Lookup(_ context.Context, redID string) (string, error) {
	if email, ok := s.entries[utils.NormalizeRedID(redID)]; ok && email != "" {
		return email, nil
	}
	return "", ErrNotFound
}

// Len returns the number of entries
func (s *Static) Len() int {
	return len(s.entries)
}

// LoadStaticFile reads entries from an XML file shaped as
// <directory><entry redId="..." email="..."/></directory>
func LoadStaticFile(path string) (map[string]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	return parseEntries(doc)
}

func parseEntries(doc *etree.Document) (map[string]string, error) {
	root := doc.SelectElement("directory")
	if root == nil {
		return nil, fmt.Errorf("directory element not found")
	}

	entries := make(map[string]string)
	for i, el := range root.SelectElements("entry") {
		redID := utils.NormalizeRedID(el.SelectAttrValue("redId", ""))
		email := strings.TrimSpace(el.SelectAttrValue("email", ""))
		if redID == "" || email == "" {
			return nil, fmt.Errorf("entry %d: redId and email are required", i+1)
		}
		entries[redID] = email
	}
	return entries, nil
}

// Chain tries each directory in order and returns the first address found.
// Failures other than ErrNotFound are logged and treated as not found.
type Chain struct {
	dirs []Directory
	log  *logrus.Logger
}

// NewChain builds a directory that consults dirs in order
func NewChain(log *logrus.Logger, dirs ...Directory) *Chain {
	return &Chain{dirs: dirs, log: log}
}

// Lookup returns the first address any directory knows for redID
func (c *Chain) Lookup(ctx context.Context, redID string) (string, error) {
	for _, d := range c.dirs {
		email, err := d.Lookup(ctx, redID)
		if err == nil && email != "" {
			return email, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			c.log.WithError(err).WithField("red_id", redID).Warn("Directory lookup failed")
		}
	}
	return "", ErrNotFound
}
