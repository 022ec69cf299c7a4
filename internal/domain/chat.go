package domain

import "fmt"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered message history of one conversation.
// System holds the grounding prompt inherited by continuation turns; it is
// kept apart from Messages, which only ever holds user and assistant entries.
type Transcript struct {
	System   string        `json:"system,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

// Len counts the user and assistant entries.
func (t Transcript) Len() int { return len(t.Messages) }

// Grounded reports whether a paper has been attached to the conversation.
// History without a system prompt came only from fallback turns.
func (t Transcript) Grounded() bool { return t.System != "" && len(t.Messages) > 0 }

// Clone returns an independent copy.
func (t Transcript) Clone() Transcript {
	out := Transcript{System: t.System}
	if t.Messages != nil {
		out.Messages = make([]ChatMessage, len(t.Messages))
		copy(out.Messages, t.Messages)
	}
	return out
}

// Append returns a copy of t with msgs added; t itself is left untouched.
func (t Transcript) Append(msgs ...ChatMessage) Transcript {
	out := Transcript{System: t.System, Messages: make([]ChatMessage, 0, len(t.Messages)+len(msgs))}
	out.Messages = append(out.Messages, t.Messages...)
	out.Messages = append(out.Messages, msgs...)
	return out
}

// Prompt lays out the messages sent to a completion backend:
// the system prompt when set, every prior message, then next.
func (t Transcript) Prompt(next ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(t.Messages)+2)
	if t.System != "" {
		out = append(out, ChatMessage{Role: RoleSystem, Content: t.System})
	}
	out = append(out, t.Messages...)
	return append(out, next)
}

// SessionState selects how a conversation turn is handled.
type SessionState int

const (
	// FreshTopic runs retrieval and grounds the turn on a new document.
	FreshTopic SessionState = iota
	// Continuation reuses the grounding carried by the transcript.
	Continuation
	// Terminated accepts no further turns.
	Terminated
)

func (s SessionState) String() string {
	switch s {
	case FreshTopic:
		return "fresh_topic"
	case Continuation:
		return "continuation"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseSessionState maps the CLI state codes 0, 1 and 2.
func ParseSessionState(code int) (SessionState, error) {
	switch SessionState(code) {
	case FreshTopic, Continuation, Terminated:
		return SessionState(code), nil
	default:
		return 0, fmt.Errorf("%w: unknown state code %d", ErrInvalidArgument, code)
	}
}
