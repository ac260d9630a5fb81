// Package session holds per-login conversational state and the private-mode
// gate.
//
// A Session replaces process-wide globals: current user, active mode, and
// the active conversation for each scope all live here, scoped to one
// logical login. The token registry hands the same Session to every request
// carrying the token, so mode and selection state are mutex-guarded.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/avvaruyasaswini/Echo/internal/echo/store"
)

// KeywordMemoryKey is the public-scope memory key holding the private-mode
// secret keyword. It is deliberately stored in the public scope — and only
// there — so it remains reachable regardless of the current mode.
const KeywordMemoryKey = "secret_keyword"

// exitToken leaves private mode. Compared after trimming and case-folding.
const exitToken = "exit"

// Session is the per-login context object passed into each orchestrator call.
type Session struct {
	UserID   string
	Username string

	mu          sync.Mutex
	privateMode bool
	// active maps scope -> active conversation id for that scope.
	active map[string]string
}

// New creates a session for an authenticated user, starting in public mode.
func New(userID, username string) *Session {
	return &Session{
		UserID:   userID,
		Username: username,
		active:   make(map[string]string),
	}
}

// PrivateMode reports whether the session is currently in private mode.
func (s *Session) PrivateMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privateMode
}

func (s *Session) setPrivateMode(private bool) {
	s.mu.Lock()
	s.privateMode = private
	s.mu.Unlock()
}

// scopeLocked returns the current scope. Callers must hold s.mu.
func (s *Session) scopeLocked() string {
	if s.privateMode {
		return store.ScopePrivate
	}
	return store.ScopePublic
}

// Scope returns the conversation/memory scope the session currently
// operates against.
func (s *Session) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopeLocked()
}

// ActiveConversation returns the active conversation id for the current
// scope, or "" when none has been selected yet.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[s.scopeLocked()]
}

// SetActiveConversation records the active conversation for the current
// scope. Each scope keeps its own selection, so switching modes never
// carries a conversation across the boundary.
func (s *Session) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[s.scopeLocked()] = conversationID
}

// Transition describes the outcome of a private-mode gate check.
type Transition int

const (
	// TransitionNone means the message is ordinary chat content.
	TransitionNone Transition = iota
	// TransitionEntered means the message was the secret keyword and the
	// session switched to private mode.
	TransitionEntered
	// TransitionExited means the message was the exit token and the session
	// switched back to public mode.
	TransitionExited
)

// Gate implements private-mode switching driven by ordinary chat text.
type Gate struct {
	store *store.Store
}

// NewGate creates a Gate backed by the given store.
func NewGate(s *store.Store) *Gate {
	return &Gate{store: s}
}

// Check inspects an incoming chat message for a mode transition and applies
// it to the session. A transition consumes the message: it must not be
// written to any conversation log and must never reach the turn logic.
//
// public -> private fires when the trimmed, case-folded message equals the
// user's configured secret keyword. private -> public fires on the literal
// token "exit" while already private; "exit" in public mode is ordinary
// chat content.
func (g *Gate) Check(ctx context.Context, sess *Session, message string) (Transition, error) {
	normalized := strings.ToLower(strings.TrimSpace(message))

	if sess.PrivateMode() {
		if normalized == exitToken {
			sess.setPrivateMode(false)
			return TransitionExited, nil
		}
		return TransitionNone, nil
	}

	keyword, ok, err := g.store.RecallString(ctx, sess.UserID, store.ScopePublic, KeywordMemoryKey)
	if err != nil {
		return TransitionNone, err
	}
	if !ok || keyword == "" {
		return TransitionNone, nil
	}

	if normalized == strings.ToLower(strings.TrimSpace(keyword)) {
		sess.setPrivateMode(true)
		return TransitionEntered, nil
	}

	return TransitionNone, nil
}

// SetKeyword configures the secret keyword. The value is trimmed and always
// stored under the public scope; callers must never log it.
func (g *Gate) SetKeyword(ctx context.Context, userID, keyword string) error {
	return g.store.Remember(ctx, userID, store.ScopePublic, KeywordMemoryKey, strings.TrimSpace(keyword))
}

// HasKeyword reports whether a keyword is currently configured.
func (g *Gate) HasKeyword(ctx context.Context, userID string) (bool, error) {
	keyword, ok, err := g.store.RecallString(ctx, userID, store.ScopePublic, KeywordMemoryKey)
	if err != nil {
		return false, err
	}
	return ok && keyword != "", nil
}

// ResetKeyword clears the configured keyword so private mode can no longer
// be entered until a new one is set.
func (g *Gate) ResetKeyword(ctx context.Context, userID string) error {
	return g.store.ClearMemory(ctx, userID, store.ScopePublic, KeywordMemoryKey)
}
