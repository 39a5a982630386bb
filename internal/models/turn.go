package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type TurnStatus string

const (
	TurnPending  TurnStatus = "pending"
	TurnComplete TurnStatus = "complete"
	TurnFailed   TurnStatus = "failed"
)

// Turn is one message of the question/answer dialogue.
type Turn struct {
	ID        int64      `json:"id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	Status    TurnStatus `json:"status"`
}

// Question is the outbound payload for one user turn.
type Question struct {
	Text   string
	Handle string
}
