package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alice@example.com", "Alice", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := store.CreateUser(ctx, "alice@example.com", "Alice Again", []byte("hash2")); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	user, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user == nil || user.ID != id || user.Fullname != "Alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	missing, err := store.GetUserByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil user, got %+v err=%v", missing, err)
	}
}

func TestListUsersExcept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	aliceID, _ := store.CreateUser(ctx, "alice@example.com", "Alice", []byte("h"))
	_, _ = store.CreateUser(ctx, "carol@example.com", "Carol", []byte("h"))
	_, _ = store.CreateUser(ctx, "bob@example.com", "Bob", []byte("h"))

	users, err := store.ListUsersExcept(ctx, aliceID)
	if err != nil {
		t.Fatalf("ListUsersExcept: %v", err)
	}
	if len(users) != 2 || users[0].Fullname != "Bob" || users[1].Fullname != "Carol" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestUpdateProfilePic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateUser(ctx, "alice@example.com", "Alice", []byte("h"))

	if err := store.UpdateProfilePic(ctx, id, "/uploads/a.png"); err != nil {
		t.Fatalf("UpdateProfilePic: %v", err)
	}
	user, _ := store.GetUserByID(ctx, id)
	if user.ProfilePic != "/uploads/a.png" {
		t.Fatalf("expected updated pic, got %q", user.ProfilePic)
	}
	if err := store.UpdateProfilePic(ctx, "ghost", "/uploads/b.png"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID, err := store.CreateUser(ctx, "bob@example.com", "Bob", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	if err := store.CreateSession(ctx, userID, "token123", exp); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	session, err := store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil || session.UserID != userID {
		t.Fatalf("unexpected session: %+v", session)
	}
	if err := store.DeleteSession(ctx, "token123"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	session, err = store.GetSession(ctx, "token123")
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session after delete")
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID, _ := store.CreateUser(ctx, "bob@example.com", "Bob", []byte("hash"))
	_ = store.CreateSession(ctx, userID, "old", time.Now().Add(-time.Hour))
	_ = store.CreateSession(ctx, userID, "fresh", time.Now().Add(time.Hour))

	n, err := store.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", n)
	}
	if s, _ := store.GetSession(ctx, "fresh"); s == nil {
		t.Fatalf("fresh session should survive")
	}
}

func TestConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	aliceID, _ := store.CreateUser(ctx, "alice@example.com", "Alice", []byte("h"))
	bobID, _ := store.CreateUser(ctx, "bob@example.com", "Bob", []byte("h"))
	carolID, _ := store.CreateUser(ctx, "carol@example.com", "Carol", []byte("h"))

	base := time.Now().Add(-time.Minute)
	first, err := store.AppendMessage(ctx, Message{SenderID: aliceID, ReceiverID: bobID, Text: "hi", CreatedAt: base})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated message id")
	}
	if _, err := store.AppendMessage(ctx, Message{SenderID: bobID, ReceiverID: aliceID, Image: "/uploads/x.png", CreatedAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("AppendMessage reply: %v", err)
	}
	if _, err := store.AppendMessage(ctx, Message{SenderID: carolID, ReceiverID: aliceID, Text: "other"}); err != nil {
		t.Fatalf("AppendMessage other: %v", err)
	}
	if _, err := store.AppendMessage(ctx, Message{SenderID: aliceID, ReceiverID: bobID}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	conv, err := store.FindConversation(ctx, bobID, aliceID)
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if len(conv) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv))
	}
	if conv[0].Text != "hi" || conv[1].Image != "/uploads/x.png" {
		t.Fatalf("unexpected order: %+v", conv)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
