package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/avvaruyasaswini/Echo/internal/echo/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	// Use a temp file that is cleaned up after the test
	f, err := os.CreateTemp(t.TempDir(), "echo-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func newTestUser(t *testing.T, s *store.Store, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "hunter2boogaloo")
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

// --- Users ---

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "pw-one"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := s.CreateUser(ctx, "alice", "pw-two")
	if !errors.Is(err, store.ErrDuplicateUser) {
		t.Errorf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "bob", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.Authenticate(ctx, "bob", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("user ID: got %q, want %q", got.ID, created.ID)
	}
}

func TestAuthenticate_FailsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "bob", "correct horse"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Unknown user and wrong password must be indistinguishable.
	_, errUnknown := s.Authenticate(ctx, "nobody", "whatever")
	_, errWrongPw := s.Authenticate(ctx, "bob", "wrong horse")

	if !errors.Is(errUnknown, store.ErrBadCredentials) {
		t.Errorf("unknown user: expected ErrBadCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, store.ErrBadCredentials) {
		t.Errorf("wrong password: expected ErrBadCredentials, got %v", errWrongPw)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "carol", "old-pw")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Wrong current password is rejected without mutating state.
	if err := s.ChangePassword(ctx, u.ID, "not-the-pw", "new-pw"); !errors.Is(err, store.ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "carol", "old-pw"); err != nil {
		t.Errorf("old password should still work after rejected change: %v", err)
	}

	if err := s.ChangePassword(ctx, u.ID, "old-pw", "new-pw"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := s.Authenticate(ctx, "carol", "new-pw"); err != nil {
		t.Errorf("new password should authenticate: %v", err)
	}
	if _, err := s.Authenticate(ctx, "carol", "old-pw"); !errors.Is(err, store.ErrBadCredentials) {
		t.Errorf("old password should be rejected after change, got %v", err)
	}
}

// --- Memories ---

func TestMemoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "dave")

	if err := s.Remember(ctx, u.ID, store.ScopePublic, "color", "blue"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	got, ok, err := s.RecallString(ctx, u.ID, store.ScopePublic, "color")
	if err != nil {
		t.Fatalf("RecallString: %v", err)
	}
	if !ok {
		t.Fatal("expected value to be present")
	}
	if got != "blue" {
		t.Errorf("got %q, want %q", got, "blue")
	}
}

func TestRemember_UpsertKeepsOneEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "dave")

	if err := s.Remember(ctx, u.ID, store.ScopePublic, "facts", []string{"likes tea"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := s.Remember(ctx, u.ID, store.ScopePublic, "facts", []string{"likes coffee"}); err != nil {
		t.Fatalf("Remember (second): %v", err)
	}

	var count int
	err := s.DB().QueryRow(
		`SELECT COUNT(*) FROM memories WHERE user_id = ? AND scope = ? AND key = ?`,
		u.ID, store.ScopePublic, "facts",
	).Scan(&count)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 entry, got %d", count)
	}

	got, ok, err := s.RecallStrings(ctx, u.ID, store.ScopePublic, "facts")
	if err != nil || !ok {
		t.Fatalf("RecallStrings: ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != "likes coffee" {
		t.Errorf("second value should win, got %v", got)
	}
}

func TestRecall_AbsentAndScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "dave")

	_, ok, err := s.Recall(ctx, u.ID, store.ScopePublic, "never-set")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if ok {
		t.Error("expected absence for an unset key")
	}

	// Same key in another scope must not leak across.
	if err := s.Remember(ctx, u.ID, store.ScopePrivate, "facts", []string{"secret fact"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	_, ok, err = s.Recall(ctx, u.ID, store.ScopePublic, "facts")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if ok {
		t.Error("private-scope value leaked into public scope")
	}
}

func TestClearMemory_ReadsAsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "dave")

	if err := s.Remember(ctx, u.ID, store.ScopePublic, "secret_keyword", "opensesame"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := s.ClearMemory(ctx, u.ID, store.ScopePublic, "secret_keyword"); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}

	_, ok, err := s.RecallString(ctx, u.ID, store.ScopePublic, "secret_keyword")
	if err != nil {
		t.Fatalf("RecallString: %v", err)
	}
	if ok {
		t.Error("cleared key should read as absent")
	}
}

func TestRecall_MalformedValueDegradesToAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "dave")

	// Corrupt a value behind the store's back.
	if err := s.Remember(ctx, u.ID, store.ScopePublic, "broken", "fine"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := s.DB().Exec(
		`UPDATE memories SET value = '{not json' WHERE user_id = ? AND key = 'broken'`, u.ID,
	); err != nil {
		t.Fatalf("corrupt value: %v", err)
	}

	_, ok, err := s.Recall(ctx, u.ID, store.ScopePublic, "broken")
	if err != nil {
		t.Fatalf("Recall must not fail on malformed values: %v", err)
	}
	if ok {
		t.Error("malformed value should read as absent")
	}

	// Wrong-shape decode also degrades to absent.
	if err := s.Remember(ctx, u.ID, store.ScopePublic, "shape", 42); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	_, ok, err = s.RecallStrings(ctx, u.ID, store.ScopePublic, "shape")
	if err != nil {
		t.Fatalf("RecallStrings: %v", err)
	}
	if ok {
		t.Error("wrong-shape value should read as absent")
	}
}

// --- Conversations ---

func TestListConversations_ScopeIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "erin")

	pub, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePublic)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	priv, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePrivate)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	pubList, err := s.ListConversations(ctx, u.ID, store.ScopePublic)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(pubList) != 1 || pubList[0].ID != pub.ID {
		t.Errorf("public listing: got %d conversations, want exactly the public one", len(pubList))
	}

	privList, err := s.ListConversations(ctx, u.ID, store.ScopePrivate)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(privList) != 1 || privList[0].ID != priv.ID {
		t.Errorf("private listing: got %d conversations, want exactly the private one", len(privList))
	}
}

func TestMessages_OrderAndEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "erin")

	conv, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePublic)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	msgs, err := s.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("fresh conversation: expected 0 messages, got %d", len(msgs))
	}

	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.AddMessage(ctx, conv.ID, store.RoleUser, content, "user"); err != nil {
			t.Fatalf("AddMessage(%s): %v", content, err)
		}
	}

	msgs, err = s.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Errorf("message %d: got %q, want %q", i, msgs[i].Content, want)
		}
		if msgs[i].Timestamp.IsZero() {
			t.Errorf("message %d: store should assign a timestamp", i)
		}
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "erin")

	conv, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePublic)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := s.AddMessage(ctx, conv.ID, store.RoleUser, "hello", "user"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	msgs, err := s.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages after delete must not fault: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages after cascade delete, got %d", len(msgs))
	}

	if _, err := s.GetConversation(ctx, conv.ID); !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}

	// Deleting twice is a no-op.
	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestClearMessages_KeepsConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "erin")

	conv, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePublic)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := s.AddMessage(ctx, conv.ID, store.RoleUser, "hello", "user"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := s.ClearMessages(ctx, conv.ID); err != nil {
		t.Fatalf("ClearMessages: %v", err)
	}

	msgs, err := s.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected 0 messages after clear, got %d", len(msgs))
	}
	if _, err := s.GetConversation(ctx, conv.ID); err != nil {
		t.Errorf("conversation should survive a clear: %v", err)
	}
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s, "erin")

	conv, err := s.CreateConversation(ctx, u.ID, "New Chat", store.ScopePublic)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if err := s.UpdateTitle(ctx, conv.ID, "Weekend plans"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "Weekend plans" {
		t.Errorf("title: got %q, want %q", got.Title, "Weekend plans")
	}

	// Unknown id is a no-op, not an error.
	if err := s.UpdateTitle(ctx, "no-such-id", "whatever"); err != nil {
		t.Errorf("UpdateTitle on missing id should be a no-op, got %v", err)
	}
}
