package domain

import "time"

// Message roles in the chat transcript.
const (
	RoleUser     = "user"
	RoleGuardian = "guardian"
)

// ChatMessage is a single entry in the persisted chat transcript.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
