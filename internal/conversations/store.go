// Package conversations holds the in-memory conversation list: id-keyed
// summaries ordered by recency, merged from server fetches and locally
// observed message events.
package conversations

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/domain"
)

// API is the slice of the REST client the store needs.
type API interface {
	Conversations(ctx context.Context) ([]api.RawConversation, error)
	InitiatePrivateConversation(ctx context.Context, targetID string) (*api.RawConversation, error)
}

// Store is the conversation store. Lookups go through an id index; ordering
// lives in a separate slice so a new message only pays for the move itself.
type Store struct {
	api API

	mu       sync.RWMutex
	items    map[string]*domain.Conversation
	order    []string // conversation ids, most recent first
	selected string
	loading  bool
}

// NewStore creates an empty conversation store.
func NewStore(apiClient API) *Store {
	return &Store{
		api:   apiClient,
		items: make(map[string]*domain.Conversation),
	}
}

// Loading reports whether a refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// List returns the conversations most recent first.
func (s *Store) List() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// Get returns one conversation by id.
func (s *Store) Get(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return *c, true
}

// Selected returns the active conversation, or nil when none is selected.
func (s *Store) Selected() *domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return nil
	}
	c, ok := s.items[s.selected]
	if !ok {
		return nil
	}
	out := *c
	return &out
}

// Select sets the active conversation. A nil conversation or one without an
// id clears the selection.
func (s *Store) Select(c *domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil || c.ID == "" {
		slog.Warn("ignoring invalid conversation selection")
		s.selected = ""
		return
	}
	s.selected = c.ID
}

// Refresh fetches the full list from the backend and replaces the local set,
// sorted descending by last-message timestamp.
func (s *Store) Refresh(ctx context.Context, currentUserID string) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	raws, err := s.api.Conversations(ctx)
	if err != nil {
		s.mu.Lock()
		s.items = make(map[string]*domain.Conversation)
		s.order = nil
		s.mu.Unlock()
		return fmt.Errorf("fetch conversations: %w", err)
	}

	formatted := make([]domain.Conversation, 0, len(raws))
	for _, raw := range raws {
		formatted = append(formatted, Format(raw, currentUserID))
	}
	sort.SliceStable(formatted, func(i, j int) bool {
		return formatted[i].LastActivity().After(formatted[j].LastActivity())
	})

	s.mu.Lock()
	s.items = make(map[string]*domain.Conversation, len(formatted))
	s.order = make([]string, 0, len(formatted))
	for i := range formatted {
		c := formatted[i]
		s.items[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	s.mu.Unlock()
	return nil
}

// ApplyIncomingMessage updates the conversation's last-message fields and
// moves it to the front of the ordering. Unknown conversations are ignored;
// the coordinator refreshes the full list for those.
func (s *Store) ApplyIncomingMessage(conversationID string, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[conversationID]
	if !ok {
		return
	}
	ts := msg.Timestamp
	c.LastMessage = msg.Content
	c.LastMessageTimestamp = &ts
	s.moveToFrontLocked(conversationID)
}

// Upsert inserts or updates a conversation, placing new entries at the front.
func (s *Store) Upsert(c domain.Conversation) {
	if c.ID == "" {
		slog.Warn("ignoring conversation without id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[c.ID]; ok {
		s.items[c.ID] = &c
		return
	}
	s.items[c.ID] = &c
	s.order = append([]string{c.ID}, s.order...)
}

// InitiatePrivate asks the backend for (or reuses) a private conversation
// with the contact, upserts it, and selects it.
func (s *Store) InitiatePrivate(ctx context.Context, contactID, currentUserID string) (*domain.Conversation, error) {
	// Reuse an already-known private conversation with this contact.
	s.mu.RLock()
	for _, c := range s.items {
		if c.Type == domain.ConversationPrivate && c.TargetID == contactID {
			existing := *c
			s.mu.RUnlock()
			s.Select(&existing)
			return &existing, nil
		}
	}
	s.mu.RUnlock()

	raw, err := s.api.InitiatePrivateConversation(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("initiate private conversation: %w", err)
	}
	if raw == nil || raw.ID == "" {
		return nil, fmt.Errorf("server returned no conversation for contact %s", contactID)
	}

	c := Format(*raw, currentUserID)
	s.Upsert(c)
	s.Select(&c)
	return &c, nil
}

// Clear drops all conversations and the selection. Called on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*domain.Conversation)
	s.order = nil
	s.selected = ""
}

func (s *Store) moveToFrontLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = id
			return
		}
	}
}

// Format maps a raw server record to the Conversation shape, deriving the
// display name and avatar from participant or group metadata with
// deterministic fallbacks. Records with an unrecognized type are passed
// through with best-effort name resolution, never filtered.
func Format(raw api.RawConversation, currentUserID string) domain.Conversation {
	name := raw.Name
	avatar := raw.AvatarURL
	if avatar == "" {
		avatar = raw.Avatar
	}
	targetID := ""
	username := raw.Username
	isOnline := false

	switch {
	case raw.Type == domain.ConversationPrivate && raw.TargetID != "":
		targetID = raw.TargetID

	case raw.Type == domain.ConversationPrivate && len(raw.Participants) > 0:
		for i := range raw.Participants {
			p := &raw.Participants[i]
			if p.ID == currentUserID {
				continue
			}
			targetID = p.ID
			if name == "" {
				name = p.DisplayName()
			}
			username = p.Username
			if avatar == "" {
				avatar = p.AvatarURL
			}
			isOnline = p.IsOnline
			break
		}

	case raw.Type == domain.ConversationPrivate && raw.OtherParticipant != nil:
		// Legacy record shape.
		p := raw.OtherParticipant
		targetID = p.ID
		if name == "" {
			name = p.DisplayName()
		}
		username = p.Username
		if avatar == "" {
			avatar = p.AvatarURL
		}
		isOnline = p.IsOnline

	case raw.Type == domain.ConversationGroup:
		targetID = raw.TargetID
		if name == "" {
			if targetID != "" {
				name = "Group " + targetID
			} else {
				name = "Group chat"
			}
		}
	}

	// Name fallbacks: never leave a conversation blank.
	if name == "" {
		switch {
		case raw.Type == domain.ConversationPrivate && targetID != "":
			name = "User " + targetID
		case raw.Type == domain.ConversationGroup:
			name = "Group " + raw.ID
		default:
			name = "Conversation " + raw.ID
		}
	}

	if avatar == "" {
		avatar = fallbackAvatar(name, raw.ID)
	}

	ts := raw.UpdatedAt
	if raw.LastMessage != nil && raw.LastMessage.Timestamp != nil {
		ts = raw.LastMessage.Timestamp
	}

	return domain.Conversation{
		ID:                   raw.ID,
		Type:                 raw.Type,
		Name:                 name,
		Username:             username,
		AvatarURL:            avatar,
		TargetID:             targetID,
		IsOnline:             isOnline,
		UnreadCount:          raw.UnreadCount,
		LastMessage:          raw.LastMessage.Body(),
		LastMessageTimestamp: ts,
	}
}

// fallbackAvatar generates an initial-letter avatar URL keyed by name, or a
// placeholder keyed by the conversation id when there is no name to key on.
func fallbackAvatar(name, id string) string {
	for _, r := range name {
		initial := strings.ToUpper(string(r))
		return "https://ui-avatars.com/api/?name=" + url.QueryEscape(initial) + "&size=40&background=random&color=fff"
	}
	return "https://i.pravatar.cc/40?u=" + url.QueryEscape(id)
}
