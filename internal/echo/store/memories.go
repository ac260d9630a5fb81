package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Memory scopes. Conversations and memories are partitioned per user by
// scope; ScopeMeta is reserved for per-conversation UI metadata blobs.
const (
	ScopePublic  = "public"
	ScopePrivate = "private"
	ScopeMeta    = "meta"
)

// jsonNull is the stored representation of an explicitly cleared memory key.
// Recall treats it the same as a missing row.
var jsonNull = []byte("null")

// Remember upserts a memory entry for (userID, scope, key). The value is
// JSON-serialized before storage; a later Remember with the same key fully
// replaces the prior value.
func (s *Store) Remember(ctx context.Context, userID, scope, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode memory value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, scope, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, scope, key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, userID, scope, key, string(data), time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to remember %s/%s: %w", scope, key, err)
	}

	return nil
}

// Recall returns the raw JSON value stored for (userID, scope, key). The
// boolean reports presence: a missing row, a stored null (an explicitly
// cleared key), and an unparseable value all report absent rather than an
// error, so malformed memory can never break the chat flow.
func (s *Store) Recall(ctx context.Context, userID, scope, key string) (json.RawMessage, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM memories
		WHERE user_id = ? AND scope = ? AND key = ?
	`, userID, scope, key).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to recall %s/%s: %w", scope, key, err)
	}

	data := []byte(raw)
	if !json.Valid(data) {
		slog.Warn("discarding malformed memory value", "scope", scope, "key", key)
		return nil, false, nil
	}
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return nil, false, nil
	}

	return json.RawMessage(data), true, nil
}

// RecallString recalls a memory entry and decodes it as a string. Decode
// failures degrade to absent.
func (s *Store) RecallString(ctx context.Context, userID, scope, key string) (string, bool, error) {
	raw, ok, err := s.Recall(ctx, userID, scope, key)
	if err != nil || !ok {
		return "", false, err
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("memory value is not a string", "scope", scope, "key", key)
		return "", false, nil
	}
	return v, true, nil
}

// RecallStrings recalls a memory entry and decodes it as a list of strings.
// Decode failures degrade to absent.
func (s *Store) RecallStrings(ctx context.Context, userID, scope, key string) ([]string, bool, error) {
	raw, ok, err := s.Recall(ctx, userID, scope, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("memory value is not a string list", "scope", scope, "key", key)
		return nil, false, nil
	}
	return v, true, nil
}

// ClearMemory soft-deletes a memory key by overwriting it with JSON null.
// Recall reports the key as absent afterwards. Clearing a key that was never
// set is not an error.
func (s *Store) ClearMemory(ctx context.Context, userID, scope, key string) error {
	return s.Remember(ctx, userID, scope, key, nil)
}
