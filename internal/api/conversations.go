package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avlasenko/talkline/internal/domain"
)

// RawConversation is a conversation record as the server sends it, before
// display-name and avatar resolution. Older server revisions populate
// OtherParticipant instead of Participants; both are accepted.
type RawConversation struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Name             string          `json:"name,omitempty"`
	AvatarURL        string          `json:"avatarUrl,omitempty"`
	Avatar           string          `json:"avatar,omitempty"`
	TargetID         string          `json:"targetId,omitempty"`
	Username         string          `json:"username,omitempty"`
	Participants     []domain.User   `json:"participants,omitempty"`
	OtherParticipant *domain.User    `json:"otherParticipant,omitempty"`
	UnreadCount      int             `json:"unreadCount,omitempty"`
	LastMessage      *RawLastMessage `json:"lastMessage,omitempty"`
	UpdatedAt        *time.Time      `json:"updatedAt,omitempty"`
}

// RawLastMessage is the last-message summary embedded in a conversation
// record. Some revisions use "text" instead of "content".
type RawLastMessage struct {
	Content   string     `json:"content,omitempty"`
	Text      string     `json:"text,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Body returns the message text regardless of which field the server used.
func (m *RawLastMessage) Body() string {
	if m == nil {
		return ""
	}
	if m.Content != "" {
		return m.Content
	}
	return m.Text
}

// RawMessage is a history message as the server sends it. SentAt takes
// precedence over Timestamp when both are present.
type RawMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Type           string     `json:"type"`
	Content        string     `json:"content"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// When returns the message timestamp, preferring sentAt.
func (m *RawMessage) When() time.Time {
	if m.SentAt != nil {
		return *m.SentAt
	}
	if m.Timestamp != nil {
		return *m.Timestamp
	}
	return time.Time{}
}

// Conversations lists all conversations for the current user.
func (c *Client) Conversations(ctx context.Context) ([]RawConversation, error) {
	var out []RawConversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InitiatePrivateConversation creates (or returns the existing) private
// conversation with the target user.
func (c *Client) InitiatePrivateConversation(ctx context.Context, targetID string) (*RawConversation, error) {
	body := map[string]string{"targetId": targetID}
	var out RawConversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/private", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConversationMessages fetches one page of history, newest first.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]RawMessage, error) {
	path := fmt.Sprintf("/api/v1/conversations/%s/messages?limit=%d&offset=%d", conversationID, limit, offset)
	var out []RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
