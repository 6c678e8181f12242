package models

import "encoding/json"

// Import outcomes stored on a Photo.
const (
	ImportStatusImported          = "imported"
	ImportStatusDuplicateSkipped  = "duplicate-skipped"
	ImportStatusDuplicateReplaced = "duplicate-replaced"
	ImportStatusRoutedToReview    = "routed-to-review"
	ImportStatusErrored           = "errored"
)

// Photo is one imported image, identified by the fingerprint of its bytes.
// It corresponds to the 'photos' table.
type Photo struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileHash     string   `gorm:"size:128;index" json:"file_hash"` // empty for records imported before hashing existed
	OriginalPath string   `gorm:"not null" json:"original_path"`
	Title        string   `gorm:"" json:"title"`
	Description  string   `gorm:"" json:"description"`
	TakenAt      *int64   `gorm:"index" json:"taken_at,omitempty"` // Nullable, Unix timestamp
	Latitude     *float64 `gorm:"" json:"latitude,omitempty"`
	Longitude    *float64 `gorm:"" json:"longitude,omitempty"`
	Keywords     string   `gorm:"type:text" json:"keywords"`      // JSON encoded []string
	JSONMetadata string   `gorm:"type:text" json:"json_metadata"` // raw sidecar document

	HasFaces     bool   `gorm:"not null;default:false" json:"has_faces"`
	ImportStatus string `gorm:"not null;default:imported" json:"import_status"`
	ImportRunID  string `gorm:"index" json:"import_run_id"`

	SupersededAt *int64 `gorm:"" json:"superseded_at,omitempty"` // set when a later duplicate replaced the metadata
	CreatedAt    int64  `gorm:"not null;index" json:"created_at"` // Unix milliseconds
	UpdatedAt    int64  `gorm:"not null" json:"updated_at"`       // Unix milliseconds

	// Relationships
	Faces []Face `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}

// GetKeywords decodes the stored keyword list.
func (p *Photo) GetKeywords() []string {
	if p.Keywords == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(p.Keywords), &out); err != nil {
		return nil
	}
	return out
}

// SetKeywords encodes the keyword list for storage.
func (p *Photo) SetKeywords(keywords []string) {
	if len(keywords) == 0 {
		p.Keywords = ""
		return
	}
	data, _ := json.Marshal(keywords)
	p.Keywords = string(data)
}
