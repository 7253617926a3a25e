package models

import "time"

// TempFile represents an uploaded document held on disk for one request.
type TempFile struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	StoredPath string    `json:"stored_path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
