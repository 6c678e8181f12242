package models

import "math"

// Face is one detected face in a Photo with its embedding.
// It corresponds to the 'faces' table.
type Face struct {
	ID        uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	PhotoID   uint  `gorm:"not null;uniqueIndex:idx_photo_face" json:"photo_id"`
	FaceIndex int   `gorm:"not null;uniqueIndex:idx_photo_face" json:"face_index"` // position of the face within its photo
	PersonID  *uint `gorm:"index" json:"person_id,omitempty"`                      // Nullable foreign key to people table

	// bounding box in pixels
	Top    int `gorm:"not null" json:"top"`
	Right  int `gorm:"not null" json:"right"`
	Bottom int `gorm:"not null" json:"bottom"`
	Left   int `gorm:"not null" json:"left"`

	Confidence     float32 `gorm:"" json:"confidence"`
	EmbeddingData  []byte  `gorm:"column:embedding_data" json:"-"` // little endian float32 vector as BLOB
	EmbeddingModel string  `gorm:"column:embedding_model" json:"embedding_model"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
	UpdatedAt int64 `gorm:"not null" json:"updated_at"`

	Photo  *Photo  `gorm:"foreignKey:PhotoID" json:"photo,omitempty"`
	Person *Person `gorm:"foreignKey:PersonID" json:"person,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Face) TableName() string {
	return "faces"
}

// GetEmbedding converts the BLOB data to []float32
func (f *Face) GetEmbedding() []float32 {
	if len(f.EmbeddingData) == 0 {
		return nil
	}

	embedding := make([]float32, len(f.EmbeddingData)/4) // 4 bytes per float32
	for i := 0; i < len(embedding); i++ {
		offset := i * 4
		bits := uint32(f.EmbeddingData[offset]) |
			uint32(f.EmbeddingData[offset+1])<<8 |
			uint32(f.EmbeddingData[offset+2])<<16 |
			uint32(f.EmbeddingData[offset+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// SetEmbedding converts []float32 to BLOB data
func (f *Face) SetEmbedding(embedding []float32) {
	if len(embedding) == 0 {
		f.EmbeddingData = nil
		return
	}

	f.EmbeddingData = make([]byte, len(embedding)*4)
	for i, val := range embedding {
		offset := i * 4
		bits := math.Float32bits(val)
		f.EmbeddingData[offset] = byte(bits)
		f.EmbeddingData[offset+1] = byte(bits >> 8)
		f.EmbeddingData[offset+2] = byte(bits >> 16)
		f.EmbeddingData[offset+3] = byte(bits >> 24)
	}
}
