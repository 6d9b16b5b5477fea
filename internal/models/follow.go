package models

import "time"

/** --------------------ENTITIES-------------------- */
// Follow is a directed edge: Follower receives notifications about Followee
type Follow struct {
	FollowerID string    `gorm:"primaryKey;type:uuid" json:"followerId"`
	FolloweeID string    `gorm:"primaryKey;type:uuid;index" json:"followeeId"`
	CreatedAt  time.Time `json:"created_at"`
}

// Like marks a user's like on a message; the pair is unique so liking twice toggles
type Like struct {
	UserID    string    `gorm:"primaryKey;type:uuid" json:"userId"`
	MessageID string    `gorm:"primaryKey;type:uuid;index" json:"messageId"`
	CreatedAt time.Time `json:"created_at"`
}
