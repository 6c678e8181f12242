package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/ap0ught/familyman/models"
)

// PhotoRepository handles database operations for Photo entities
type PhotoRepository struct {
	DB *gorm.DB
}

var _ PhotoRepositoryInterface = (*PhotoRepository)(nil)

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

func stampFaces(photoID uint, faces []models.Face, now int64) []models.Face {
	out := make([]models.Face, len(faces))
	for i, f := range faces {
		f.ID = 0
		f.PhotoID = photoID
		f.CreatedAt = now
		f.UpdatedAt = now
		out[i] = f
	}
	return out
}

// CreateWithFaces inserts a new photo and its detected faces atomically.
func (r *PhotoRepository) CreateWithFaces(photo *models.Photo, faces []models.Face) error {
	now := time.Now().UnixMilli()
	if photo.CreatedAt == 0 {
		photo.CreatedAt = now
	}
	photo.UpdatedAt = now
	photo.OriginalPath = filepath.ToSlash(photo.OriginalPath)

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Faces").Create(photo).Error; err != nil {
			return fmt.Errorf("failed to create photo %s: %w", photo.OriginalPath, err)
		}
		if len(faces) == 0 {
			return nil
		}
		newFaces := stampFaces(photo.ID, faces, now)
		if err := tx.Create(&newFaces).Error; err != nil {
			return fmt.Errorf("failed to add faces for %s: %w", photo.OriginalPath, err)
		}
		return nil
	})
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %d: %w", id, err)
	}
	return &photo, nil
}

// GetByFingerprint returns the earliest created photo with the fingerprint.
func (r *PhotoRepository) GetByFingerprint(fileHash string) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.Where("file_hash = ?", fileHash).Order("created_at ASC, id ASC").First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by fingerprint %s: %w", fileHash, err)
	}
	return &photo, nil
}

// ListByFingerprint returns every photo sharing the fingerprint, oldest first.
func (r *PhotoRepository) ListByFingerprint(fileHash string) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Where("file_hash = ?", fileHash).Order("created_at ASC, id ASC").Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos by fingerprint %s: %w", fileHash, err)
	}
	return photos, nil
}

// ListMissingFingerprint returns photos imported without a fingerprint.
func (r *PhotoRepository) ListMissingFingerprint() ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Where("file_hash = '' OR file_hash IS NULL").Order("id ASC").Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos without fingerprint: %w", err)
	}
	return photos, nil
}

// ReplaceImport overwrites the metadata and faces of an existing photo with
// a fresh import of the same content. The fingerprint is never changed.
func (r *PhotoRepository) ReplaceImport(photo *models.Photo, faces []models.Face) error {
	if photo.ID == 0 {
		return fmt.Errorf("cannot replace photo without ID")
	}
	now := time.Now().UnixMilli()
	cleanPath := filepath.ToSlash(photo.OriginalPath)

	updates := map[string]interface{}{
		"original_path": cleanPath,
		"title":         photo.Title,
		"description":   photo.Description,
		"taken_at":      photo.TakenAt,
		"latitude":      photo.Latitude,
		"longitude":     photo.Longitude,
		"keywords":      photo.Keywords,
		"json_metadata": photo.JSONMetadata,
		"has_faces":     photo.HasFaces,
		"import_status": photo.ImportStatus,
		"import_run_id": photo.ImportRunID,
		"superseded_at": now,
		"updated_at":    now,
	}

	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Photo{}).Where("id = ?", photo.ID).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to replace photo %d: %w", photo.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("photo_id = ?", photo.ID).Delete(&models.Face{}).Error; err != nil {
			return fmt.Errorf("failed to delete old faces for photo %d: %w", photo.ID, err)
		}
		if len(faces) > 0 {
			newFaces := stampFaces(photo.ID, faces, now)
			if err := tx.Create(&newFaces).Error; err != nil {
				return fmt.Errorf("failed to add faces for photo %d: %w", photo.ID, err)
			}
		}
		photo.SupersededAt = &now
		photo.UpdatedAt = now
		return nil
	})
}

// UpdateFingerprint stores a retroactively computed fingerprint.
func (r *PhotoRepository) UpdateFingerprint(id uint, fileHash string) error {
	result := r.DB.Model(&models.Photo{}).Where("id = ?", id).Updates(map[string]interface{}{
		"file_hash":  fileHash,
		"updated_at": time.Now().UnixMilli(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update fingerprint for photo %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a photo and its faces
func (r *PhotoRepository) Delete(id uint) error {
	n, err := r.DeleteMany([]uint{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMany removes photos and their faces in one transaction and returns
// the number of photos deleted.
func (r *PhotoRepository) DeleteMany(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id IN ?", ids).Delete(&models.Face{}).Error; err != nil {
			return fmt.Errorf("failed to delete faces of photos %v: %w", ids, err)
		}
		result := tx.Where("id IN ?", ids).Delete(&models.Photo{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete photos %v: %w", ids, result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

// Count returns the number of photo records.
func (r *PhotoRepository) Count() (int64, error) {
	var n int64
	if err := r.DB.Model(&models.Photo{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return n, nil
}
