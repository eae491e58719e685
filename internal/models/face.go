// Package models defines the records and requests shared by the enrollment and storage layers.
package models

import "time"

// FaceRecord is the durable record of one enrolled face.
type FaceRecord struct {
	ItemID         string    `json:"item_id" db:"item_id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	DisplayName    string    `json:"display_name,omitempty" db:"display_name"`
	VectorPosition int       `json:"vector_position" db:"vector_position"`
	Embedding      []float32 `json:"-" db:"embedding"`
	SourcePath     string    `json:"source_path,omitempty" db:"source_path"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// EnrollInput is the input for enrolling one face image.
type EnrollInput struct {
	TenantID    string `json:"tenant_id"`
	ItemID      string `json:"item_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
	Image       []byte `json:"-"`
}

// Enrollment describes a successfully enrolled face.
type Enrollment struct {
	ItemID      string `json:"item_id"`
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name,omitempty"`
	Position    int    `json:"position"`
	Checkpoint  bool   `json:"checkpoint,omitempty"`
}
