package models

import (
	"time"

	"github.com/google/uuid"
)

type Video struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	MediaURL        string    `json:"media_url"`
	DurationSeconds int       `json:"duration_seconds"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// VideoWatch records one rewarded watch. The unique key
// (account_id, video_id, business_day) is what makes double crediting on the
// same business day impossible even under concurrent requests.
type VideoWatch struct {
	AccountID   uuid.UUID `json:"account_id"`
	VideoID     uuid.UUID `json:"video_id"`
	BusinessDay time.Time `json:"business_day"`
	RewardedAt  time.Time `json:"rewarded_at"`
}
