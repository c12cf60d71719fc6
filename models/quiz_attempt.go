package models

import "time"

type AttemptState string

const (
	AttemptReceived  AttemptState = "received"
	AttemptValidated AttemptState = "validated"
	AttemptResolved  AttemptState = "resolved"
	AttemptCommitted AttemptState = "committed"
	AttemptRejected  AttemptState = "rejected"
)

// QuizAttempt is a scored submission. ID is the client-supplied attempt id,
// so a replayed submission collides on the primary key.
type QuizAttempt struct {
	ID           string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PlayerID     string       `gorm:"index:idx_attempt_player_topic;not null" json:"player_id"`
	TopicID      string       `gorm:"index:idx_attempt_player_topic;not null" json:"topic_id"`
	RawScore     int64        `gorm:"not null" json:"raw_score"`
	FirstAttempt bool         `gorm:"not null" json:"first_attempt"`
	FinalScore   int64        `gorm:"not null;default:0" json:"final_score"`
	TokenDelta   int64        `gorm:"not null;default:0" json:"token_delta"`
	State        AttemptState `gorm:"type:varchar(16);not null" json:"state"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}
