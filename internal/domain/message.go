package domain

import "time"

// Message delivery status.
const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// Message is a single chat message, either fetched from history, delivered
// over the WebSocket channel, or created optimistically on local send.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status,omitempty"`
}

// SameAs reports whether two records represent the same logical message.
// Matching ids are authoritative; otherwise a (timestamp, sender, content)
// tuple match identifies an optimistic message and its server echo.
func (m *Message) SameAs(other *Message) bool {
	if m.ID != "" && m.ID == other.ID {
		return true
	}
	return m.Timestamp.Equal(other.Timestamp) &&
		m.SenderID == other.SenderID &&
		m.Content == other.Content
}

// PageCursor tracks backward pagination state for one conversation. Offset
// only advances by the count of messages the last fetch actually returned.
type PageCursor struct {
	Offset    int
	HasMore   bool
	IsLoading bool
}
