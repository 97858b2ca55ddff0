package domain

import "time"

// Conversation types. Unrecognized values are passed through untouched so the
// presentation layer can render them generically.
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// Conversation is a private or group chat thread. The id is stable and
// distinct from the counterpart user/group id held in TargetID.
type Conversation struct {
	ID                   string     `json:"id"`
	Type                 string     `json:"type"`
	Name                 string     `json:"name"`
	Username             string     `json:"username,omitempty"`
	AvatarURL            string     `json:"avatarUrl"`
	TargetID             string     `json:"targetId,omitempty"`
	IsOnline             bool       `json:"isOnline"`
	UnreadCount          int        `json:"unreadCount"`
	LastMessage          string     `json:"lastMessage"`
	LastMessageTimestamp *time.Time `json:"lastMessageTimestamp,omitempty"`
}

// IsGroup reports whether the conversation is a group thread.
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// LastActivity returns the last-message timestamp, or the zero time when no
// message has been observed. Absent timestamps sort as epoch 0.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessageTimestamp == nil {
		return time.Time{}
	}
	return *c.LastMessageTimestamp
}
