// Package chat coordinates the stores: it routes channel events into the
// message and conversation stores, drives the send flow, and owns the
// auto-refresh loop. Store mutations happen only from network event delivery
// or user actions funneled through this coordinator.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avlasenko/talkline/internal/channel"
	"github.com/avlasenko/talkline/internal/conversations"
	"github.com/avlasenko/talkline/internal/domain"
	"github.com/avlasenko/talkline/internal/i18n"
	"github.com/avlasenko/talkline/internal/messages"
)

// ErrSendFailed is returned when a message could not be handed to the
// channel; the optimistic message is marked failed in that case.
var ErrSendFailed = errors.New("message send failed: connection is down")

// ErrNoSelection is returned by operations that need an active conversation.
var ErrNoSelection = errors.New("no conversation selected")

// Channel is the slice of the channel manager the coordinator needs.
type Channel interface {
	Events() <-chan channel.Event
	Send(payload any) bool
	Connect(ctx context.Context, token, userID string) error
	Reconnect(ctx context.Context) error
	Disconnect()
	State() channel.State
	Recent() []channel.Entry
}

// Sessions supplies the current session snapshot.
type Sessions interface {
	Current() domain.Session
}

// Notifier shows a desktop notification, reporting whether it was delivered.
type Notifier interface {
	Show(title, body string) bool
}

// Options tune the coordinator.
type Options struct {
	PageSize        int
	RefreshInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 30 * time.Second
	}
	return o
}

// Manager wires the channel and the stores together.
type Manager struct {
	sessions Sessions
	channel  Channel
	convos   *conversations.Store
	msgs     *messages.Store
	notifier Notifier
	bundle   *i18n.Bundle
	opts     Options
}

// New creates a coordinator. notifier and bundle may be nil.
func New(sessions Sessions, ch Channel, convos *conversations.Store, msgs *messages.Store, notifier Notifier, bundle *i18n.Bundle, opts Options) *Manager {
	return &Manager{
		sessions: sessions,
		channel:  ch,
		convos:   convos,
		msgs:     msgs,
		notifier: notifier,
		bundle:   bundle,
		opts:     opts.withDefaults(),
	}
}

// outboundFrame is the wire shape of a sent message.
type outboundFrame struct {
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	ReceiverID     string    `json:"receiverId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// inboundFrame is the minimal shape every useful frame must carry.
type inboundFrame struct {
	ConversationID string `json:"conversationId"`
}

// Run processes channel events and drives the periodic refresh until the
// context is canceled. It is the only goroutine that reacts to the channel.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.channel.Events():
			m.handleEvent(ctx, ev)
		case <-ticker.C:
			m.periodicRefresh(ctx)
		}
	}
}

// StartSession connects the channel and loads the conversation list. Called
// after the session becomes active.
func (m *Manager) StartSession(ctx context.Context) error {
	sess := m.sessions.Current()
	if !sess.Active() {
		return fmt.Errorf("cannot start chat session: not authenticated")
	}
	if err := m.channel.Connect(ctx, sess.Token, sess.CurrentUser.ID); err != nil {
		// The channel keeps retrying on its own; the list is still useful.
		slog.Warn("initial channel connect failed", "error", err)
	}
	return m.convos.Refresh(ctx, sess.CurrentUser.ID)
}

// Teardown disconnects and clears all stores atomically. Called on logout.
func (m *Manager) Teardown() {
	m.channel.Disconnect()
	m.msgs.ClearAll()
	m.convos.Clear()
}

// OpenConversation selects a conversation and loads its initial page when it
// has not been loaded yet.
func (m *Manager) OpenConversation(ctx context.Context, conv domain.Conversation) error {
	m.convos.Select(&conv)
	if len(m.msgs.Messages(conv.ID)) > 0 {
		return nil
	}
	return m.msgs.FetchPage(ctx, conv.ID, 0, m.opts.PageSize, true)
}

// LoadMore fetches the next older page for the selected conversation.
func (m *Manager) LoadMore(ctx context.Context) error {
	selected := m.convos.Selected()
	if selected == nil {
		return ErrNoSelection
	}
	cursor := m.msgs.Cursor(selected.ID)
	if !cursor.HasMore {
		return nil
	}
	return m.msgs.FetchPage(ctx, selected.ID, cursor.Offset, m.opts.PageSize, false)
}

// SendText creates an optimistic message and hands it to the channel. When
// the channel is not open the message is always marked failed; /retry is the
// user's affordance, not a silent drop.
func (m *Manager) SendText(content string) (*domain.Message, error) {
	sess := m.sessions.Current()
	if !sess.Active() {
		return nil, fmt.Errorf("cannot send: not authenticated")
	}
	selected := m.convos.Selected()
	if selected == nil {
		return nil, ErrNoSelection
	}

	optimistic := m.msgs.CreateOptimistic(selected.ID, content, sess.CurrentUser.ID)
	if optimistic == nil {
		return nil, fmt.Errorf("cannot send an empty message")
	}

	frame := outboundFrame{
		Type:           domain.MessageText,
		Content:        content,
		ReceiverID:     selected.TargetID,
		ConversationID: selected.ID,
		Timestamp:      optimistic.Timestamp,
	}

	if !m.channel.Send(frame) {
		m.msgs.MarkFailed(selected.ID, optimistic.ID)
		return optimistic, ErrSendFailed
	}

	// Handed to the socket. The server echo, arriving under its own id, is
	// collapsed by the (timestamp, sender, content) dedupe rule.
	m.msgs.MarkSent(selected.ID, optimistic.ID)
	m.convos.ApplyIncomingMessage(selected.ID, *optimistic)
	return optimistic, nil
}

// Retry re-sends a failed message, reusing its content and conversation.
func (m *Manager) Retry(conversationID, messageID string) error {
	for _, msg := range m.msgs.Messages(conversationID) {
		if msg.ID == messageID && msg.Status == domain.StatusFailed {
			frame := outboundFrame{
				Type:           msg.Type,
				Content:        msg.Content,
				ConversationID: msg.ConversationID,
				Timestamp:      msg.Timestamp,
			}
			if conv, ok := m.convos.Get(conversationID); ok {
				frame.ReceiverID = conv.TargetID
			}
			if !m.channel.Send(frame) {
				return ErrSendFailed
			}
			m.msgs.MarkSent(conversationID, messageID)
			return nil
		}
	}
	return fmt.Errorf("no failed message %s in conversation %s", messageID, conversationID)
}

// Reconnect forces an immediate reconnect, resetting the retry counter. It
// is the user's escape hatch after the channel gave up.
func (m *Manager) Reconnect(ctx context.Context) error {
	return m.channel.Reconnect(ctx)
}

// ChannelState reports the current connectivity state.
func (m *Manager) ChannelState() channel.State {
	return m.channel.State()
}

// RecentEvents returns the recorded channel event history, oldest first.
func (m *Manager) RecentEvents() []channel.Entry {
	return m.channel.Recent()
}

// InitiatePrivate opens (or reuses) a private conversation with the contact
// and selects it.
func (m *Manager) InitiatePrivate(ctx context.Context, contactID string) (*domain.Conversation, error) {
	sess := m.sessions.Current()
	if !sess.Active() {
		return nil, fmt.Errorf("cannot initiate conversation: not authenticated")
	}
	return m.convos.InitiatePrivate(ctx, contactID, sess.CurrentUser.ID)
}

func (m *Manager) handleEvent(ctx context.Context, ev channel.Event) {
	switch ev.Type {
	case channel.EventFrame:
		m.handleFrame(ctx, ev.Frame)
	case channel.EventConnected:
		slog.Info("chat channel connected")
	case channel.EventDisconnected:
		if ev.Err != nil {
			slog.Warn("chat channel disconnected", "error", ev.Err)
		}
	case channel.EventGaveUp:
		slog.Error("chat channel gave up reconnecting", "attempts", ev.Attempt, "error", ev.Err)
	case channel.EventError:
		slog.Warn("chat channel error", "error", ev.Err)
	}
}

func (m *Manager) handleFrame(ctx context.Context, raw json.RawMessage) {
	var probe inboundFrame
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ConversationID == "" {
		slog.Warn("dropping frame without conversationId", "bytes", len(raw))
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("dropping undecodable message frame", "error", err)
		return
	}
	if msg.Status == "" {
		msg.Status = domain.StatusSent
	}

	m.msgs.AppendLocal(msg)
	m.convos.ApplyIncomingMessage(msg.ConversationID, msg)

	selected := m.convos.Selected()
	if selected != nil && selected.ID == msg.ConversationID {
		return
	}

	// Background conversation: refresh the list (the conversation may be
	// new to us) and raise a notification.
	sess := m.sessions.Current()
	if sess.Active() {
		if err := m.convos.Refresh(ctx, sess.CurrentUser.ID); err != nil {
			slog.Warn("conversation refresh after message failed", "error", err)
		}
	}
	if m.notifier != nil {
		title := "New message"
		if m.bundle != nil {
			title = m.bundle.T("chat.new_message")
		}
		m.notifier.Show(title, msg.Content)
	}
}

func (m *Manager) periodicRefresh(ctx context.Context) {
	sess := m.sessions.Current()
	if !sess.Active() {
		return
	}
	if err := m.convos.Refresh(ctx, sess.CurrentUser.ID); err != nil {
		slog.Warn("periodic conversation refresh failed", "error", err)
	}
	if m.channel.State() != channel.StateOpen {
		slog.Info("channel down during periodic refresh, reconnecting")
		if err := m.channel.Reconnect(ctx); err != nil {
			slog.Warn("periodic reconnect failed", "error", err)
		}
	}
}
