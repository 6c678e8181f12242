package repository

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ap0ught/familyman/models"
)

// PersonRepository handles database operations for Person entities
type PersonRepository struct {
	DB *gorm.DB
}

var _ PersonRepositoryInterface = (*PersonRepository)(nil)

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// FindOrCreate returns the person with the given name, creating it when absent
func (r *PersonRepository) FindOrCreate(name string) (*models.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("person name is empty")
	}
	now := time.Now().UnixMilli()
	person := models.Person{Name: name, CreatedAt: now, UpdatedAt: now}
	err := r.DB.Where(models.Person{Name: name}).FirstOrCreate(&person).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find or create person %s: %w", name, err)
	}
	return &person, nil
}

// ListAll retrieves all people, ordered by name
func (r *PersonRepository) ListAll() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Order("name ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}
