package domain

import "time"

// ConversationTurn is one inbound SMS message to process. It lives for a
// single invocation and is discarded once the turn completes.
type ConversationTurn struct {
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// ConversationContext is the persisted continuation state for one sender.
// At most one live context exists per sender; a new write replaces any
// prior context rather than appending to it.
type ConversationContext struct {
	Sender         string
	ConversationID string
	MessageID      string
	Timestamp      time.Time
	TTL            int64
}

// Continuation is the (conversation id, parent message id) anchor used to
// resume a multi-turn exchange with the chat backend.
type Continuation struct {
	ConversationID string
	MessageID      string
}
