package service

import (
	"strings"

	"github.com/Dan9191/lostcard-service/internal/models"
)

// identity is what the pipeline knows about the owner after extraction
type identity struct {
	RedID    *string
	FullName *string
}

func (i identity) known() bool {
	return i.RedID != nil || i.FullName != nil
}

// resolveIdentity applies the precedence rule: a manually entered identifier
// always beats an extracted one. The name can only come from extraction.
func resolveIdentity(manualRedID string, extracted *models.ExtractedInfo) identity {
	var id identity
	if manual := strings.TrimSpace(manualRedID); manual != "" {
		id.RedID = &manual
	}
	if extracted == nil {
		return id
	}
	if id.RedID == nil && extracted.RedID != nil && *extracted.RedID != "" {
		v := *extracted.RedID
		id.RedID = &v
	}
	if extracted.FullName != nil && *extracted.FullName != "" {
		v := *extracted.FullName
		id.FullName = &v
	}
	return id
}
