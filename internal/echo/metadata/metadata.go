// Package metadata layers light per-conversation UI state (pinned, archived,
// title override) on top of the generic scoped memory store.
//
// Each conversation owns at most one JSON blob in the reserved "meta" memory
// scope, keyed by the conversation id. The blob survives independently of the
// conversation's title column and is consulted preferentially for display.
package metadata

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/avvaruyasaswini/Echo/internal/echo/store"
)

// keyPrefix namespaces metadata blobs inside the meta scope.
const keyPrefix = "convo_meta_"

// Meta is the per-conversation UI metadata blob. The zero value is the
// default for conversations that have never been pinned, archived, or
// renamed.
type Meta struct {
	Pinned   bool   `json:"pinned"`
	Archived bool   `json:"archived"`
	Title    string `json:"title,omitempty"`
}

// Service reads and writes conversation metadata for one backing store.
type Service struct {
	store *store.Store
}

// New creates a metadata Service backed by the given store.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

func metaKey(conversationID string) string {
	return keyPrefix + conversationID
}

// Get returns the metadata blob for a conversation. A missing or malformed
// blob degrades to the zero Meta rather than an error.
func (m *Service) Get(ctx context.Context, userID, conversationID string) (Meta, error) {
	raw, ok, err := m.store.Recall(ctx, userID, store.ScopeMeta, metaKey(conversationID))
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, nil
	}

	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		slog.Warn("discarding malformed conversation metadata", "conversation_id", conversationID)
		return Meta{}, nil
	}
	return meta, nil
}

// set persists the full metadata blob, overwriting any previous value.
func (m *Service) set(ctx context.Context, userID, conversationID string, meta Meta) error {
	return m.store.Remember(ctx, userID, store.ScopeMeta, metaKey(conversationID), meta)
}

// Pin sets or clears the pinned flag.
func (m *Service) Pin(ctx context.Context, userID, conversationID string, pinned bool) error {
	meta, err := m.Get(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	meta.Pinned = pinned
	return m.set(ctx, userID, conversationID, meta)
}

// Archive sets or clears the archived flag.
func (m *Service) Archive(ctx context.Context, userID, conversationID string, archived bool) error {
	meta, err := m.Get(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	meta.Archived = archived
	return m.set(ctx, userID, conversationID, meta)
}

// Rename stores a display-title override. An empty title removes the
// override so the conversation's own title shows again.
func (m *Service) Rename(ctx context.Context, userID, conversationID, title string) error {
	meta, err := m.Get(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	meta.Title = title
	return m.set(ctx, userID, conversationID, meta)
}

// DisplayTitle returns the title override when one is set, falling back to
// the conversation's own title.
func (m *Service) DisplayTitle(ctx context.Context, userID, conversationID, title string) (string, error) {
	meta, err := m.Get(ctx, userID, conversationID)
	if err != nil {
		return title, err
	}
	if meta.Title != "" {
		return meta.Title, nil
	}
	return title, nil
}

// Clear removes a conversation's metadata blob. Called when the conversation
// itself is deleted so no orphaned blobs accumulate.
func (m *Service) Clear(ctx context.Context, userID, conversationID string) error {
	return m.store.ClearMemory(ctx, userID, store.ScopeMeta, metaKey(conversationID))
}
