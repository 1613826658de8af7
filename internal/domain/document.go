package domain

import (
	"fmt"
	"time"
)

// Document is a ledger entry for one uploaded PDF.
type Document struct {
	ID         string
	UserID     string
	Filename   string
	StorageKey string
	SizeBytes  int64
	SHA256     string
	UploadedAt time.Time

	// DownloadURL is a temporary link to the stored PDF. It is never persisted.
	DownloadURL string
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if err := ValidateUserID(d.UserID); err != nil {
		return err
	}
	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}
	if d.StorageKey == "" {
		return fmt.Errorf("document StorageKey is required")
	}
	if d.SizeBytes < 0 {
		return fmt.Errorf("document SizeBytes cannot be negative")
	}
	return nil
}

// QueryLog records one question asked against a user's index.
type QueryLog struct {
	ID         string
	UserID     string
	Query      string
	TopK       int
	Passages   int
	DurationMs int64
	Failed     bool
	CreatedAt  time.Time
}
