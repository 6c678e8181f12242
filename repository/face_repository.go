package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/ap0ught/familyman/models"
)

// FaceRepository handles database operations for Face entities
type FaceRepository struct {
	DB *gorm.DB
}

var _ FaceRepositoryInterface = (*FaceRepository)(nil)

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// ListByPhotoID retrieves all faces of a photo in face index order
func (r *FaceRepository) ListByPhotoID(photoID uint) ([]models.Face, error) {
	var faces []models.Face
	err := r.DB.Preload("Person").Where("photo_id = ?", photoID).Order("face_index ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for photo %d: %w", photoID, err)
	}
	return faces, nil
}

// ListWithEmbeddings returns every stored face that carries an embedding,
// with its Photo preloaded, ordered by photo path and face index.
func (r *FaceRepository) ListWithEmbeddings() ([]models.Face, error) {
	var faces []models.Face
	err := r.DB.Preload("Photo").
		Joins("JOIN photos ON photos.id = faces.photo_id").
		Where("faces.embedding_data IS NOT NULL AND length(faces.embedding_data) > 0").
		Order("photos.original_path ASC, faces.face_index ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list face embeddings: %w", err)
	}
	return faces, nil
}

// FindByPhotoPathAndIndex looks up a face by the original path of its photo
// and its index within that photo.
func (r *FaceRepository) FindByPhotoPathAndIndex(originalPath string, faceIndex int) (*models.Face, error) {
	var face models.Face
	err := r.DB.Joins("JOIN photos ON photos.id = faces.photo_id").
		Where("photos.original_path = ? AND faces.face_index = ?", filepath.ToSlash(originalPath), faceIndex).
		Order("photos.created_at ASC").
		First(&face).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find face %d of %s: %w", faceIndex, originalPath, err)
	}
	return &face, nil
}

// TagFace assigns a person to a face
func (r *FaceRepository) TagFace(faceID uint, personID uint) error {
	result := r.DB.Model(&models.Face{}).Where("id = ?", faceID).Updates(map[string]interface{}{
		"person_id":  personID,
		"updated_at": time.Now().UnixMilli(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to tag face ID %d with person ID %d: %w", faceID, personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Count returns the number of stored faces.
func (r *FaceRepository) Count() (int64, error) {
	var n int64
	if err := r.DB.Model(&models.Face{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count faces: %w", err)
	}
	return n, nil
}
