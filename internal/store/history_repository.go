package store

import (
	"context"
	"time"

	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/pkg/cache"

	"gorm.io/gorm"
)

// HistoryRepository provides access to the append-only message log.
type HistoryRepository interface {
	// AppendPair durably writes one user/model message pair and bumps the
	// character's message counter by 2 in the same transaction. It returns
	// the post-increment counter value.
	AppendPair(ctx context.Context, characterID, userText, modelText string) (int, error)
	// LoadRecent returns at most messageLimit of the most recent messages in
	// chronological order. A trailing user message (an incomplete turn) is
	// dropped so the window always ends on a model reply or is empty.
	LoadRecent(ctx context.Context, characterID string, messageLimit int) ([]models.HistoryEntry, error)
}

// GormHistoryRepository is the gorm-backed history repository.
type GormHistoryRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewGormHistoryRepository(db *gorm.DB, profileCache *cache.Cache) *GormHistoryRepository {
	return &GormHistoryRepository{db: db, cache: profileCache}
}

func (r *GormHistoryRepository) AppendPair(ctx context.Context, characterID, userText, modelText string) (int, error) {
	var newCount int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Timestamps are server-assigned; the model entry is nudged forward
		// so the pair stays strictly orderable.
		now := time.Now().UTC()
		entries := []models.HistoryEntry{
			{CharacterID: characterID, Role: models.RoleUser, Message: userText, Timestamp: now},
			{CharacterID: characterID, Role: models.RoleModel, Message: modelText, Timestamp: now.Add(time.Millisecond)},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Character{}).
			Where("id = ?", characterID).
			Update("turn_count", gorm.Expr("turn_count + 2"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCharacterNotFound
		}

		var character models.Character
		if err := tx.Select("turn_count").First(&character, "id = ?", characterID).Error; err != nil {
			return err
		}
		newCount = character.TurnCount
		return nil
	})
	if err != nil {
		return 0, err
	}

	// The cached profile carries the old counter now.
	if r.cache != nil {
		r.cache.Delete(characterID)
	}
	return newCount, nil
}

func (r *GormHistoryRepository) LoadRecent(ctx context.Context, characterID string, messageLimit int) ([]models.HistoryEntry, error) {
	if messageLimit <= 0 {
		return []models.HistoryEntry{}, nil
	}

	var entries []models.HistoryEntry
	err := r.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(messageLimit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	// Drop an orphaned trailing user message; generation needs the window to
	// end on a completed exchange.
	if n := len(entries); n > 0 && entries[n-1].Role == models.RoleUser {
		entries = entries[:n-1]
	}

	return entries, nil
}
