package models

import "time"

type Notification struct {
	ID          int64     `json:"id,omitempty"`
	RecipientId int64     `json:"recipient_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
