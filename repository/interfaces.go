package repository

import (
	"gorm.io/gorm"

	"github.com/ap0ught/familyman/models"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = gorm.ErrRecordNotFound

// PhotoRepositoryInterface is the record store the import pipeline needs:
// insert, lookup by fingerprint, update and delete by id.
type PhotoRepositoryInterface interface {
	CreateWithFaces(photo *models.Photo, faces []models.Face) error
	GetByID(id uint) (*models.Photo, error)
	GetByFingerprint(fileHash string) (*models.Photo, error)
	ListByFingerprint(fileHash string) ([]models.Photo, error)
	ListMissingFingerprint() ([]models.Photo, error)
	ReplaceImport(photo *models.Photo, faces []models.Face) error
	UpdateFingerprint(id uint, fileHash string) error
	Delete(id uint) error
	DeleteMany(ids []uint) (int64, error)
	Count() (int64, error)
}

// FaceRepositoryInterface defines the methods for face data operations
type FaceRepositoryInterface interface {
	ListByPhotoID(photoID uint) ([]models.Face, error)
	ListWithEmbeddings() ([]models.Face, error)
	FindByPhotoPathAndIndex(originalPath string, faceIndex int) (*models.Face, error)
	TagFace(faceID uint, personID uint) error
	Count() (int64, error)
}

// PersonRepositoryInterface defines the methods for person data operations
type PersonRepositoryInterface interface {
	FindOrCreate(name string) (*models.Person, error)
	ListAll() ([]models.Person, error)
}
