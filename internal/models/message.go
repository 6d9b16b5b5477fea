package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */
// Message is a short location-tagged feed update
type Message struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"` // Client-assigned uuid, deduplication key
	UserID    string         `gorm:"index;not null" json:"userId"`
	Username  string         `gorm:"not null" json:"username"`
	Text      string         `gorm:"not null" json:"text"`
	Latitude  float64        `gorm:"not null" json:"latitude"`
	Longitude float64        `gorm:"not null" json:"longitude"`
	Likes     int            `gorm:"default:0" json:"likes"`
	SentAt    time.Time      `gorm:"index;default:CURRENT_TIMESTAMP" json:"sentAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks the fields a message must carry before persistence
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("message author is required")
	}
	if m.Text == "" {
		return fmt.Errorf("message text is required")
	}
	if m.Latitude < -90 || m.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", m.Latitude)
	}
	if m.Longitude < -180 || m.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", m.Longitude)
	}
	return nil
}

// Preview returns the first n characters of the message text, used by
// follower notifications so the full payload never travels over the
// realtime channel.
func (m *Message) Preview(n int) string {
	runes := []rune(m.Text)
	if len(runes) <= n {
		return m.Text
	}
	return string(runes[:n])
}

/** -------------------- DTOs -------------------- */
type MessageResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Likes     int       `json:"likes"`
	SentAt    time.Time `json:"sentAt"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Text:      m.Text,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Likes:     m.Likes,
		SentAt:    m.SentAt,
	}
}
