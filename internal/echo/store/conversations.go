package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrConversationNotFound is returned by lookups for an unknown conversation.
// Mutating operations (delete, clear, retitle) are idempotent and do NOT
// return this error for missing ids.
var ErrConversationNotFound = errors.New("store: conversation not found")

// Conversation is a scoped chat thread owned by one user. The id is a UUID,
// so identities are never reused after deletion.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Scope     string
	CreatedAt time.Time
}

// Message is a single turn in a conversation. The avatar tag is a
// role-specific UI hint and carries no semantics.
type Message struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	Avatar         string
	Timestamp      time.Time
}

// CreateConversation creates a conversation with a fresh identity and a
// server-assigned creation timestamp.
func (s *Store) CreateConversation(ctx context.Context, userID, title, scope string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Scope:     scope,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, scope, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Title, conv.Scope, conv.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation retrieves a conversation by id. Returns
// ErrConversationNotFound for unknown ids.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, scope, created_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Scope, &conv.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// ListConversations returns the user's conversations in the given scope,
// newest first. The scope filter is mandatory: there is no way to list
// across scopes, so private threads can never leak into a public listing.
func (s *Store) ListConversations(ctx context.Context, userID, scope string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, scope, created_at
		FROM conversations
		WHERE user_id = ? AND scope = ?
		ORDER BY created_at DESC
	`, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Scope, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return convs, nil
}

// AddMessage appends a message to a conversation with a server-assigned
// timestamp and returns the stored record.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content, avatar string) (*Message, error) {
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Avatar:         avatar,
		Timestamp:      time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, avatar, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.Role, msg.Content, msg.Avatar, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		msg.ID = id
	}

	return msg, nil
}

// GetMessages returns a conversation's messages in ascending timestamp
// order. A conversation with no messages (or an unknown id) yields an empty
// slice, never an error.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, COALESCE(avatar, ''), timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	msgs := []*Message{}
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Avatar, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return msgs, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetConversationTitle returns just the title column for a conversation.
// Returns ErrConversationNotFound for unknown ids.
func (s *Store) GetConversationTitle(ctx context.Context, conversationID string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM conversations WHERE id = ?`, conversationID,
	).Scan(&title)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConversationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get conversation title: %w", err)
	}
	return title, nil
}

// UpdateTitle replaces a conversation's title. A no-op for unknown ids.
func (s *Store) UpdateTitle(ctx context.Context, conversationID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// ClearMessages deletes all messages from a conversation, keeping the
// conversation itself. A no-op for unknown ids.
func (s *Store) ClearMessages(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// DeleteConversation deletes a conversation and all of its messages.
// Messages go first so there is no window where a message row outlives its
// conversation. Deleting twice is a no-op, not an error.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.ClearMessages(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
