package models

import (
	"time"
)

/** --------------------ENTITIES-------------------- */
// User represents a feed account
type User struct {
	ID       string `gorm:"primaryKey;type:uuid;default:uuid_generate_v4()" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"` // Unique handle shown on the map
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `json:"-"` // Password is hashed and not returned in responses
	// Avatar is optional and can be used to store a profile picture URL.
	Avatar string `json:"avatar,omitempty"`
	IsBot  bool   `gorm:"default:false" json:"isBot"` // Template-driven bot accounts post like users

	IsOnline  bool       `gorm:"default:false" json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"-"`
}

/** -------------------- DTOs -------------------- */
// Response
type UserResponse struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	IsBot    bool       `json:"isBot"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
	Avatar   string     `json:"avatar,omitempty"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		IsBot:    u.IsBot,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
		Avatar:   u.Avatar,
	}
}
