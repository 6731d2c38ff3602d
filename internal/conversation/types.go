package conversation

import (
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
)

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the block prefix used in rendered transcripts.
func (r Role) Label() string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// Message is one parsed user or assistant turn.
type Message struct {
	UUID      string
	SessionID string
	Timestamp time.Time
	Role      Role
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is a tool invocation inside an assistant turn. Only the target
// path is kept.
type ToolCall struct {
	Name string
	Path string
}

// ParseError records a skipped line.
type ParseError struct {
	Line int
	Err  string
}

// Transcript is a rendered session ready for extraction.
type Transcript struct {
	SessionID string
	Title     string
	Text      string
	Marks     []extraction.TimeMark
	Messages  []Message
	// Skipped counts malformed lines. Errors holds at most maxErrors of them.
	Skipped int
	Errors  []ParseError
}
