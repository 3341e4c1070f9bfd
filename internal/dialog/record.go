// ABOUTME: Message record types for a single conversation turn
// ABOUTME: Records are values; once appended their content never changes

package dialog

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

// Role constants for the three participants a chat-completions endpoint knows about.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Record is one turn of the dialog as exported to callers.
type Record struct {
	ID               string    `json:"id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	IsUserOriginated bool      `json:"isUserOriginated"`
}

// NewRecord creates a record stamped with the current time and a fresh ID.
func NewRecord(role Role, content string) Record {
	return Record{
		ID:               uuid.New().String(),
		Role:             role,
		Content:          content,
		Timestamp:        time.Now(),
		IsUserOriginated: role == RoleUser,
	}
}

// Turn is the role/content pair sent to a model endpoint.
type Turn struct {
	Role    Role
	Content string
}
