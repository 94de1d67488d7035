package models

import "time"

// Session stores one WhatsApp conversation with a customer
type Session struct {
	ID string `json:"id" gorm:"primaryKey"` // remote JID, e.g. "5511999998888@s.whatsapp.net"

	// Customer identity (attached as it becomes known, never overwritten)
	CustomerPhone string `json:"customer_phone" gorm:"index"`
	AltRemoteID   string `json:"alt_remote_id" gorm:"index"` // lid-style alias some clients send

	// Blocked sessions are already with the human team
	Blocked bool `json:"blocked"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the session passed its expiry time
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Message is one entry in a session transcript
type Message struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID string `json:"session_id" gorm:"index;not null"`

	Role    string `json:"role"`
	Content string `json:"content" gorm:"type:text"` // empty for assistant turns that only carry tool calls

	// Tool plumbing
	ToolCallID string `json:"tool_call_id"`                // tool role: id this message answers
	ToolName   string `json:"tool_name"`                   // tool role: which tool produced it
	ToolCalls  string `json:"tool_calls" gorm:"type:text"` // assistant role: JSON list of requested calls

	CreatedAt time.Time `json:"created_at"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)
