package store

import (
	"context"
	"errors"

	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/pkg/cache"

	"gorm.io/gorm"
)

// ErrCharacterNotFound is returned when a character id has no row. Callers
// use it to tell "character absent" apart from a store outage.
var ErrCharacterNotFound = errors.New("character not found")

// CharacterRepository provides access to character records.
type CharacterRepository interface {
	GetByID(ctx context.Context, id string) (*models.Character, error)
	Create(ctx context.Context, character *models.Character) error
	// UpdateMemory overwrites the character's memory prompt in full. Each
	// summarization replaces the previous memory, there is no merge.
	UpdateMemory(ctx context.Context, id string, summary string) error
}

// GormCharacterRepository is the gorm-backed character repository with an
// optional read-through profile cache.
type GormCharacterRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewGormCharacterRepository(db *gorm.DB, profileCache *cache.Cache) *GormCharacterRepository {
	return &GormCharacterRepository{db: db, cache: profileCache}
}

func (r *GormCharacterRepository) GetByID(ctx context.Context, id string) (*models.Character, error) {
	if r.cache != nil {
		if cached, found := r.cache.Get(id); found {
			if character, ok := cached.(*models.Character); ok {
				return character, nil
			}
		}
	}

	var character models.Character
	err := r.db.WithContext(ctx).First(&character, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(id, &character)
	}
	return &character, nil
}

func (r *GormCharacterRepository) Create(ctx context.Context, character *models.Character) error {
	return r.db.WithContext(ctx).Create(character).Error
}

func (r *GormCharacterRepository) UpdateMemory(ctx context.Context, id string, summary string) error {
	result := r.db.WithContext(ctx).Model(&models.Character{}).
		Where("id = ?", id).
		Update("memory_prompt", summary)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCharacterNotFound
	}
	if r.cache != nil {
		r.cache.Delete(id)
	}
	return nil
}
