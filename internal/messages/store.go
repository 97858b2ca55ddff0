// Package messages holds the per-conversation message lists: paginated
// backward fetch with offset tracking, optimistic local insertion, and
// id/content-based deduplication.
package messages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/domain"
	"github.com/google/uuid"
)

// API is the slice of the REST client the store needs.
type API interface {
	ConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]api.RawMessage, error)
}

// Redundant fetches for the same (conversation, offset, limit) key inside
// this window are dropped instead of raced.
const fetchSuppressWindow = 2 * time.Second

// Store is the message store. Lists are kept strictly chronological
// ascending; no two entries share an identity under the dedupe rule.
type Store struct {
	api API

	mu        sync.Mutex
	byConvo   map[string][]domain.Message
	cursors   map[string]*domain.PageCursor
	pending   map[string]bool
	lastFetch map[string]time.Time

	now func() time.Time
}

// NewStore creates an empty message store.
func NewStore(apiClient API) *Store {
	return &Store{
		api:       apiClient,
		byConvo:   make(map[string][]domain.Message),
		cursors:   make(map[string]*domain.PageCursor),
		pending:   make(map[string]bool),
		lastFetch: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Messages returns the stored list for a conversation, oldest first.
func (s *Store) Messages(conversationID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConvo[conversationID]
	out := make([]domain.Message, len(list))
	copy(out, list)
	return out
}

// Cursor returns the pagination state for a conversation. A conversation
// that was never fetched reports HasMore=true.
func (s *Store) Cursor(conversationID string) domain.PageCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[conversationID]; ok {
		return *c
	}
	return domain.PageCursor{HasMore: true}
}

// FetchPage loads one page of history. The backend returns newest first; the
// page is reversed to chronological order, deduplicated by id against
// already-held messages, and prepended (or, for the initial fetch, replaces
// the list). Duplicate in-flight or recently issued requests for the same
// key are silently dropped.
func (s *Store) FetchPage(ctx context.Context, conversationID string, offset, limit int, isInitial bool) error {
	if conversationID == "" {
		return nil
	}
	key := fmt.Sprintf("%s-%d-%d", conversationID, offset, limit)

	s.mu.Lock()
	if s.pending[key] {
		s.mu.Unlock()
		slog.Debug("skipping duplicate in-flight fetch", "key", key)
		return nil
	}
	if since := s.now().Sub(s.lastFetch[key]); since < fetchSuppressWindow {
		s.mu.Unlock()
		slog.Debug("suppressing redundant fetch", "key", key, "since", since)
		return nil
	}
	s.pending[key] = true
	s.lastFetch[key] = s.now()
	s.cursorLocked(conversationID).IsLoading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.cursorLocked(conversationID).IsLoading = false
		s.mu.Unlock()
	}()

	raws, err := s.api.ConversationMessages(ctx, conversationID, limit, offset)
	if err != nil {
		s.mu.Lock()
		s.cursorLocked(conversationID).HasMore = false
		s.mu.Unlock()
		return fmt.Errorf("fetch messages for %s: %w", conversationID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := s.cursorLocked(conversationID)
	if len(raws) == 0 {
		cursor.HasMore = false
		return nil
	}

	// Newest-first from the server; reverse for chronological storage.
	page := make([]domain.Message, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		raw := raws[i]
		page = append(page, domain.Message{
			ID:             raw.ID,
			ConversationID: conversationID,
			SenderID:       raw.SenderID,
			Type:           raw.Type,
			Content:        raw.Content,
			Timestamp:      raw.When(),
			Status:         domain.StatusSent,
		})
	}

	existing := s.byConvo[conversationID]
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.ID] = true
	}
	unique := page[:0]
	for _, m := range page {
		if !seen[m.ID] {
			unique = append(unique, m)
		}
	}

	if len(unique) > 0 {
		if isInitial {
			s.byConvo[conversationID] = append([]domain.Message(nil), unique...)
		} else {
			// Older messages go in front of what is already held.
			merged := make([]domain.Message, 0, len(unique)+len(existing))
			merged = append(merged, unique...)
			merged = append(merged, existing...)
			s.byConvo[conversationID] = merged
		}
	}

	// Offset advances by what the server actually returned, so a short page
	// also stops further fetching.
	cursor.Offset = offset + len(raws)
	cursor.HasMore = len(raws) == limit
	return nil
}

// AppendLocal adds a message delivered over the WebSocket channel or created
// locally. It is idempotent: a record matching an existing one by id, or by
// the (timestamp, sender, content) tuple, is dropped. The tuple rule is what
// collapses an optimistic message with its server echo arriving under a
// different id.
func (s *Store) AppendLocal(msg domain.Message) bool {
	if msg.ConversationID == "" {
		slog.Warn("dropping message without conversation id")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byConvo[msg.ConversationID]
	for i := range existing {
		if existing[i].SameAs(&msg) {
			slog.Debug("message already present, skipping", "id", msg.ID)
			return false
		}
	}
	s.byConvo[msg.ConversationID] = append(existing, msg)
	return true
}

// CreateOptimistic synthesizes a pending message with a locally unique id
// and inserts it. Returns nil when required fields are missing.
func (s *Store) CreateOptimistic(conversationID, content, senderID string) *domain.Message {
	if conversationID == "" || content == "" || senderID == "" {
		slog.Warn("cannot create optimistic message, missing fields",
			"conversation_id", conversationID, "sender_id", senderID)
		return nil
	}

	msg := domain.Message{
		ID:             "msg_" + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           domain.MessageText,
		Content:        content,
		Timestamp:      s.now().UTC(),
		Status:         domain.StatusSending,
	}
	s.AppendLocal(msg)
	return &msg
}

// MarkFailed transitions a message to the failed status.
func (s *Store) MarkFailed(conversationID, messageID string) bool {
	return s.setStatus(conversationID, messageID, domain.StatusFailed)
}

// MarkSent transitions a message to the sent status.
func (s *Store) MarkSent(conversationID, messageID string) bool {
	return s.setStatus(conversationID, messageID, domain.StatusSent)
}

func (s *Store) setStatus(conversationID, messageID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byConvo[conversationID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].Status = status
			return true
		}
	}
	return false
}

// Clear drops all state for one conversation.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConvo, conversationID)
	delete(s.cursors, conversationID)
	for key := range s.pending {
		if keyConversation(key) == conversationID {
			delete(s.pending, key)
		}
	}
	for key := range s.lastFetch {
		if keyConversation(key) == conversationID {
			delete(s.lastFetch, key)
		}
	}
}

// ClearAll drops every conversation. Called on logout.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConvo = make(map[string][]domain.Message)
	s.cursors = make(map[string]*domain.PageCursor)
	s.pending = make(map[string]bool)
	s.lastFetch = make(map[string]time.Time)
}

func (s *Store) cursorLocked(conversationID string) *domain.PageCursor {
	c, ok := s.cursors[conversationID]
	if !ok {
		c = &domain.PageCursor{HasMore: true}
		s.cursors[conversationID] = c
	}
	return c
}

// keyConversation strips the "-offset-limit" suffix from a request key.
func keyConversation(key string) string {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return key
	}
	j := strings.LastIndex(key[:i], "-")
	if j < 0 {
		return key
	}
	return key[:j]
}
