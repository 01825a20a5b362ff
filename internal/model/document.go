package model

import "time"

// Document is the metadata row for one successfully ingested file. The
// row is written last in the ingestion pipeline, only after the chunk
// vectors and the blob are durably stored, so an existing row certifies
// that both artifacts exist.
type Document struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Filename        string    `gorm:"size:256;not null" json:"filename"`
	StorageKey      string    `gorm:"size:512;not null" json:"storage_key"`
	FileSize        int64     `gorm:"not null" json:"file_size"`
	ContentType     string    `gorm:"size:128;not null" json:"content_type"`
	VectorNamespace string    `gorm:"size:64;not null;index" json:"vector_namespace"`
	CreatedAt       time.Time `json:"created_at"`
}
