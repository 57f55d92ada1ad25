package models

import "time"

const (
	MessageNew      = "new"
	MessageRead     = "read"
	MessageReplied  = "replied"
	MessageArchived = "archived"
)

type ContactMessage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:100;not null" json:"name"`
	Email      string     `gorm:"size:120;not null" json:"email"`
	Subject    string     `gorm:"size:255" json:"subject"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Status     string     `gorm:"size:20;index;not null;default:'new'" json:"status"`
	IPAddress  string     `gorm:"size:64" json:"ip_address"`
	AdminNotes string     `gorm:"type:text" json:"admin_notes"`
	RepliedAt  *time.Time `json:"replied_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func ValidMessageStatus(s string) bool {
	switch s {
	case MessageNew, MessageRead, MessageReplied, MessageArchived:
		return true
	}
	return false
}
