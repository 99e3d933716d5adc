package models

// BlobRef points at an object in the blob store. Key is the store key; Name is
// the original file name shown to operators.
type BlobRef struct {
	Key  string `gorm:"size:512" json:"key,omitempty"`
	Name string `gorm:"size:255" json:"name,omitempty"`
}

// IsZero reports whether the reference is unset
func (b BlobRef) IsZero() bool {
	return b.Key == ""
}
