package messages

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/avlasenko/talkline/internal/api"
	"github.com/avlasenko/talkline/internal/domain"
)

type fakeAPI struct {
	pages [][]api.RawMessage
	err   error
	calls int
}

func (f *fakeAPI) ConversationMessages(_ context.Context, _ string, _, _ int) ([]api.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func ts(sec int) *time.Time {
	t := time.Date(2026, 8, 1, 12, 0, sec, 0, time.UTC)
	return &t
}

// newestFirst builds a server page: ids m<hi>..m<lo>, newest first.
func newestFirst(lo, hi int) []api.RawMessage {
	var page []api.RawMessage
	for i := hi; i >= lo; i-- {
		page = append(page, api.RawMessage{
			ID:        "m" + strconv.Itoa(i),
			SenderID:  "u2",
			Type:      domain.MessageText,
			Content:   "msg " + strconv.Itoa(i),
			Timestamp: ts(i),
		})
	}
	return page
}

func newTestStore(f *fakeAPI) *Store {
	s := NewStore(f)
	// A fixed clock keeps the suppression window out of the way unless a
	// test advances it explicitly.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	elapsed := time.Duration(0)
	s.now = func() time.Time {
		elapsed += 3 * time.Second
		return base.Add(elapsed)
	}
	return s
}

func TestStore_FetchPageInitial(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(1, 3)}}
	s := newTestStore(f)

	if err := s.FetchPage(context.Background(), "c1", 0, 3, true); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	got := s.Messages("c1")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Errorf("messages[%d].ID = %s, want %s (chronological order)", i, got[i].ID, want)
		}
		if got[i].Status != domain.StatusSent {
			t.Errorf("messages[%d].Status = %s, want sent", i, got[i].Status)
		}
	}

	cursor := s.Cursor("c1")
	if cursor.Offset != 3 {
		t.Errorf("Offset = %d, want 3", cursor.Offset)
	}
	if !cursor.HasMore {
		t.Error("HasMore = false after a full page")
	}
}

func TestStore_FetchPageShortPageStopsPagination(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(1, 2)}}
	s := newTestStore(f)

	if err := s.FetchPage(context.Background(), "c1", 0, 5, true); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	cursor := s.Cursor("c1")
	if cursor.HasMore {
		t.Error("HasMore = true after a short page")
	}
	if cursor.Offset != 2 {
		t.Errorf("Offset = %d, want 2", cursor.Offset)
	}
}

func TestStore_FetchPageEmptyStopsPagination(t *testing.T) {
	f := &fakeAPI{}
	s := newTestStore(f)

	if err := s.FetchPage(context.Background(), "c1", 0, 5, true); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if s.Cursor("c1").HasMore {
		t.Error("HasMore = true after an empty page")
	}
}

func TestStore_FetchPageErrorStopsPagination(t *testing.T) {
	f := &fakeAPI{err: errors.New("boom")}
	s := newTestStore(f)

	if err := s.FetchPage(context.Background(), "c1", 0, 5, true); err == nil {
		t.Fatal("expected fetch error")
	}
	if s.Cursor("c1").HasMore {
		t.Error("HasMore = true after a failed fetch")
	}
	if s.Cursor("c1").IsLoading {
		t.Error("IsLoading stuck after a failed fetch")
	}
}

func TestStore_FetchPagePrependsOlderHistory(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{
		newestFirst(4, 5), // initial: the two newest
		newestFirst(2, 3), // next: the two before them
	}}
	s := newTestStore(f)

	if err := s.FetchPage(context.Background(), "c1", 0, 2, true); err != nil {
		t.Fatalf("initial fetch failed: %v", err)
	}
	if err := s.FetchPage(context.Background(), "c1", 2, 2, false); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	got := s.Messages("c1")
	want := []string{"m2", "m3", "m4", "m5"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("messages[%d].ID = %s, want %s", i, got[i].ID, want[i])
		}
	}
	if got := s.Cursor("c1").Offset; got != 4 {
		t.Errorf("Offset = %d, want 4", got)
	}
}

func TestStore_FetchPageDeduplicatesByID(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{
		newestFirst(1, 2),
		newestFirst(1, 2), // overlapping page
	}}
	s := newTestStore(f)

	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	_ = s.FetchPage(context.Background(), "c1", 2, 2, false)

	if got := len(s.Messages("c1")); got != 2 {
		t.Errorf("len = %d, want 2 after overlapping fetch", got)
	}
}

func TestStore_FetchPageSuppressesRapidRepeats(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(1, 2), newestFirst(1, 2)}}
	s := NewStore(f)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	clock = clock.Add(time.Second) // within the window
	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	if f.calls != 1 {
		t.Errorf("calls = %d, want 1 (second fetch suppressed)", f.calls)
	}

	clock = clock.Add(2 * time.Second) // past the window
	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	if f.calls != 2 {
		t.Errorf("calls = %d, want 2 after the window elapsed", f.calls)
	}
}

func TestStore_FetchPageDifferentOffsetsNotSuppressed(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(3, 4), newestFirst(1, 2)}}
	s := NewStore(f)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	_ = s.FetchPage(context.Background(), "c1", 2, 2, false)
	if f.calls != 2 {
		t.Errorf("calls = %d, want 2 (different offsets are distinct keys)", f.calls)
	}
}

func TestStore_AppendLocalIdempotentByID(t *testing.T) {
	s := newTestStore(&fakeAPI{})
	msg := domain.Message{
		ID: "m1", ConversationID: "c1", SenderID: "u1",
		Content: "hi", Timestamp: *ts(1), Status: domain.StatusSent,
	}

	if !s.AppendLocal(msg) {
		t.Fatal("first append rejected")
	}
	if s.AppendLocal(msg) {
		t.Error("duplicate id appended")
	}
	if got := len(s.Messages("c1")); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
}

func TestStore_AppendLocalCollapsesServerEcho(t *testing.T) {
	s := newTestStore(&fakeAPI{})

	optimistic := s.CreateOptimistic("c1", "hello", "u1")
	if optimistic == nil {
		t.Fatal("CreateOptimistic returned nil")
	}

	// The server echo of the same send arrives under its own id but shares
	// timestamp, sender, and content.
	echo := domain.Message{
		ID:             "srv-1",
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hello",
		Timestamp:      optimistic.Timestamp,
		Status:         domain.StatusSent,
	}
	if s.AppendLocal(echo) {
		t.Error("server echo was not collapsed with the optimistic message")
	}
	if got := len(s.Messages("c1")); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
}

func TestStore_AppendLocalRequiresConversationID(t *testing.T) {
	s := newTestStore(&fakeAPI{})
	if s.AppendLocal(domain.Message{ID: "m1", Content: "hi"}) {
		t.Error("message without conversation id was accepted")
	}
}

func TestStore_CreateOptimistic(t *testing.T) {
	s := newTestStore(&fakeAPI{})

	msg := s.CreateOptimistic("c1", "hello", "u1")
	if msg == nil {
		t.Fatal("CreateOptimistic returned nil")
	}
	if msg.Status != domain.StatusSending {
		t.Errorf("Status = %s, want sending", msg.Status)
	}
	if msg.ID == "" || msg.ID[:4] != "msg_" {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
	if msg.Type != domain.MessageText {
		t.Errorf("Type = %s, want text", msg.Type)
	}

	if s.CreateOptimistic("c1", "", "u1") != nil {
		t.Error("empty content accepted")
	}
	if s.CreateOptimistic("", "hello", "u1") != nil {
		t.Error("empty conversation accepted")
	}
}

func TestStore_MarkFailedAndSent(t *testing.T) {
	s := newTestStore(&fakeAPI{})
	msg := s.CreateOptimistic("c1", "hello", "u1")

	if !s.MarkFailed("c1", msg.ID) {
		t.Fatal("MarkFailed did not find the message")
	}
	if got := s.Messages("c1")[0].Status; got != domain.StatusFailed {
		t.Errorf("Status = %s, want failed", got)
	}

	if !s.MarkSent("c1", msg.ID) {
		t.Fatal("MarkSent did not find the message")
	}
	if got := s.Messages("c1")[0].Status; got != domain.StatusSent {
		t.Errorf("Status = %s, want sent", got)
	}

	if s.MarkFailed("c1", "missing") {
		t.Error("MarkFailed reported success for an unknown id")
	}
}

func TestStore_ClearDropsOneConversation(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(1, 2), newestFirst(3, 4)}}
	s := newTestStore(f)

	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	_ = s.FetchPage(context.Background(), "c2", 0, 2, true)

	s.Clear("c1")

	if len(s.Messages("c1")) != 0 {
		t.Error("c1 still has messages after Clear")
	}
	if len(s.Messages("c2")) != 2 {
		t.Error("Clear(c1) also dropped c2")
	}
	if !s.Cursor("c1").HasMore {
		t.Error("cleared conversation should report HasMore again")
	}
}

func TestStore_ClearAll(t *testing.T) {
	f := &fakeAPI{pages: [][]api.RawMessage{newestFirst(1, 2)}}
	s := newTestStore(f)

	_ = s.FetchPage(context.Background(), "c1", 0, 2, true)
	s.ClearAll()

	if len(s.Messages("c1")) != 0 {
		t.Error("messages survived ClearAll")
	}
}
