package models

// ExtractedInfo is the best-effort result of reading a card photo
type ExtractedInfo struct {
	RedID    *string `json:"redId"`
	FullName *string `json:"fullName"`
}

// Found reports whether extraction produced any field
func (e *ExtractedInfo) Found() bool {
	return e != nil && (e.RedID != nil || e.FullName != nil)
}

// Owner is the contact a found card is returned to
type Owner struct {
	Email    string
	FullName string
	RedID    string
}
