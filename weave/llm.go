package weave

import "context"

// Role tags one conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the request history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a fully-built text generation request.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Completion is the terminal event of a response stream, carrying the full
// text and usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Fragment is one event of a response stream: either a text delta, a
// terminal completion, or a transport error. The producer sends exactly one
// terminal fragment (Done or Err) and then closes the channel.
type Fragment struct {
	Delta string
	Done  *Completion
	Err   error
}

// ChatStreamer is the narrow interface to the text-generation collaborator.
// Implementations live in weave/provider; anything that can deliver deltas
// followed by exactly one completion works.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req Request) <-chan Fragment
}
