package repository

import (
	"context"
	"errors"
	"time"

	"geofeed/internal/models"

	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Message, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*models.Message, error)
	Delete(ctx context.Context, id, userID string) error
	ToggleLike(ctx context.Context, messageID, userID string) (liked bool, err error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	if message.SentAt.IsZero() {
		message.SentAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListRecent(ctx context.Context, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Order("sent_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("sent_at > ?", since).
		Order("sent_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Delete(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ToggleLike inserts or removes the (user, message) like pair inside one
// transaction and keeps the denormalized counter on the message in step.
func (r *messageRepository) ToggleLike(ctx context.Context, messageID, userID string) (bool, error) {
	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Like
		err := tx.First(&existing, "message_id = ? AND user_id = ?", messageID, userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Like{UserID: userID, MessageID: messageID}).Error; err != nil {
				return err
			}
			liked = true
			return tx.Model(&models.Message{}).
				Where("id = ?", messageID).
				UpdateColumn("likes", gorm.Expr("likes + 1")).Error
		case err != nil:
			return err
		default:
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			liked = false
			return tx.Model(&models.Message{}).
				Where("id = ? AND likes > 0", messageID).
				UpdateColumn("likes", gorm.Expr("likes - 1")).Error
		}
	})
	return liked, err
}
