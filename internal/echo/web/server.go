// Package web exposes Echo's JSON HTTP API. It is the interface boundary
// between the conversation engine and whatever UI sits in front of it;
// rendering, cookies, and asset serving are someone else's problem.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avvaruyasaswini/Echo/internal/echo/engine"
	"github.com/avvaruyasaswini/Echo/internal/echo/metadata"
	"github.com/avvaruyasaswini/Echo/internal/echo/session"
	"github.com/avvaruyasaswini/Echo/internal/echo/store"
)

// Config holds options for creating a web Server.
type Config struct {
	// SessionTTL is the lifetime of a bearer token. When zero,
	// DefaultSessionTTL is used.
	SessionTTL time.Duration
}

// RouteRegistrar is satisfied by *http.ServeMux and by app.Server, so the
// API can register its routes without importing the app package.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// turnRunner is the minimal interface the API needs from the orchestrator.
// The production implementation is *engine.Orchestrator.
type turnRunner interface {
	Turn(ctx context.Context, userID, scope, conversationID, message string) (*store.Message, error)
}

// Server handles the Echo API routes.
type Server struct {
	store    *store.Store
	gate     *session.Gate
	meta     *metadata.Service
	engine   turnRunner
	sessions *sessionRegistry
	logger   *slog.Logger
}

// New creates a web Server over the shared store, the private-mode gate,
// the metadata service, and the orchestrator.
func New(s *store.Store, gate *session.Gate, meta *metadata.Service, eng turnRunner, cfg Config) *Server {
	return &Server{
		store:    s,
		gate:     gate,
		meta:     meta,
		engine:   eng,
		sessions: newSessionRegistry(cfg.SessionTTL),
		logger:   slog.Default().With("component", "web"),
	}
}

// RegisterRoutes adds the API routes to the given RouteRegistrar:
//
//   - POST   /api/register                   — create an account
//   - POST   /api/login                      — issue a bearer token
//   - POST   /api/logout                     — revoke the bearer token
//   - POST   /api/password                   — change password
//   - POST   /api/keyword                    — set the private-mode keyword
//   - DELETE /api/keyword                    — clear the keyword
//   - GET    /api/conversations              — list (grouped, current scope)
//   - POST   /api/conversations              — create "Chat #n"
//   - GET    /api/conversations/{id}/messages
//   - POST   /api/conversations/{id}/pin     — {"pinned": bool}
//   - POST   /api/conversations/{id}/archive — {"archived": bool}
//   - POST   /api/conversations/{id}/rename  — {"title": string}
//   - POST   /api/conversations/{id}/clear   — delete messages, keep thread
//   - DELETE /api/conversations/{id}
//   - POST   /api/chat                       — gate check + one turn
func (srv *Server) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/api/register", http.HandlerFunc(srv.handleRegister))
	r.Handle("/api/login", http.HandlerFunc(srv.handleLogin))
	r.Handle("/api/logout", srv.authenticated(srv.handleLogout))
	r.Handle("/api/password", srv.authenticated(srv.handlePassword))
	r.Handle("/api/keyword", srv.authenticated(srv.handleKeyword))
	r.Handle("/api/conversations", srv.authenticated(srv.handleConversations))
	r.Handle("/api/conversations/", srv.authenticated(srv.handleConversation))
	r.Handle("/api/chat", srv.authenticated(srv.handleChat))
}

// PruneSessions drops expired bearer tokens. Intended to be called from a
// background goroutine.
func (srv *Server) PruneSessions() {
	srv.sessions.PruneExpired()
}

// --- request/response bodies ---------------------------------------------------

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type passwordRequest struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

type keywordRequest struct {
	Keyword string `json:"keyword"`
}

type conversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationListResponse struct {
	Scope    string             `json:"scope"`
	Pinned   []conversationView `json:"pinned"`
	Recent   []conversationView `json:"recent"`
	Archived []conversationView `json:"archived"`
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	// Transition is "entered" or "exited" when the message switched modes
	// and was consumed; empty for an ordinary turn.
	Transition     string       `json:"transition,omitempty"`
	Scope          string       `json:"scope"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Reply          *messageView `json:"reply,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- helpers -------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// authedHandler is an authenticated route: the session and raw token are
// resolved before the handler runs.
type authedHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session, token string)

// authenticated wraps a handler with bearer token resolution. Missing,
// unknown, and expired tokens all produce 401.
func (srv *Server) authenticated(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := srv.sessions.Lookup(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, sess, token)
	})
}

// loadOwnedConversation fetches a conversation and verifies it belongs to
// the session's user and scope. Cross-scope and cross-user access both look
// like "not found" to the caller.
func (srv *Server) loadOwnedConversation(ctx context.Context, sess *session.Session, id string) (*store.Conversation, error) {
	conv, err := srv.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != sess.UserID || conv.Scope != sess.Scope() {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

// --- handlers ------------------------------------------------------------------

func (srv *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := srv.store.CreateUser(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		srv.logger.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (srv *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := srv.store.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, store.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		srv.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, _, err := srv.sessions.Issue(user.ID, user.Username)
	if err != nil {
		srv.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}

func (srv *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ *session.Session, token string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	srv.sessions.Revoke(token)
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handlePassword(w http.ResponseWriter, r *http.Request, sess *session.Session, _ string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.New == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}

	if err := srv.store.ChangePassword(r.Context(), sess.UserID, req.Current, req.New); err != nil {
		if errors.Is(err, store.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		srv.logger.Error("password change failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handleKeyword(w http.ResponseWriter, r *http.Request, sess *session.Session, _ string) {
	switch r.Method {
	case http.MethodPost:
		var req keywordRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Keyword) == "" {
			writeError(w, http.StatusBadRequest, "keyword is required")
			return
		}
		if err := srv.gate.SetKeyword(r.Context(), sess.UserID, req.Keyword); err != nil {
			srv.logger.Error("keyword set failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := srv.gate.ResetKeyword(r.Context(), sess.UserID); err != nil {
			srv.logger.Error("keyword reset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleConversations serves the collection route: list and create.
func (srv *Server) handleConversations(w http.ResponseWriter, r *http.Request, sess *session.Session, _ string) {
	switch r.Method {
	case http.MethodGet:
		srv.listConversations(w, r, sess)
	case http.MethodPost:
		srv.createConversation(w, r, sess)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listConversations groups the current scope's threads the way the sidebar
// shows them: pinned first, then recent, archived kept apart. Titles come
// through the metadata override when one is set.
func (srv *Server) listConversations(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ctx := r.Context()
	convs, err := srv.store.ListConversations(ctx, sess.UserID, sess.Scope())
	if err != nil {
		srv.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := conversationListResponse{
		Scope:    sess.Scope(),
		Pinned:   []conversationView{},
		Recent:   []conversationView{},
		Archived: []conversationView{},
	}
	for _, conv := range convs {
		meta, err := srv.meta.Get(ctx, sess.UserID, conv.ID)
		if err != nil {
			srv.logger.Error("metadata lookup failed", "conversation_id", conv.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		title := conv.Title
		if meta.Title != "" {
			title = meta.Title
		}
		view := conversationView{
			ID:        conv.ID,
			Title:     title,
			Pinned:    meta.Pinned,
			Archived:  meta.Archived,
			CreatedAt: conv.CreatedAt,
		}
		switch {
		case meta.Archived:
			resp.Archived = append(resp.Archived, view)
		case meta.Pinned:
			resp.Pinned = append(resp.Pinned, view)
		default:
			resp.Recent = append(resp.Recent, view)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// createConversation starts a numbered "Chat #n" thread in the current
// scope and makes it the session's active conversation.
func (srv *Server) createConversation(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ctx := r.Context()
	existing, err := srv.store.ListConversations(ctx, sess.UserID, sess.Scope())
	if err != nil {
		srv.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	title := fmt.Sprintf("Chat #%d", len(existing)+1)
	conv, err := srv.store.CreateConversation(ctx, sess.UserID, title, sess.Scope())
	if err != nil {
		srv.logger.Error("create conversation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sess.SetActiveConversation(conv.ID)

	writeJSON(w, http.StatusCreated, conversationView{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
	})
}

// handleConversation dispatches /api/conversations/{id} and its
// sub-actions.
func (srv *Server) handleConversation(w http.ResponseWriter, r *http.Request, sess *session.Session, _ string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	conv, err := srv.loadOwnedConversation(ctx, sess, id)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		srv.logger.Error("conversation lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		srv.deleteConversation(w, r, sess, conv)
	case action == "messages" && r.Method == http.MethodGet:
		srv.getMessages(w, r, conv)
	case action == "pin" && r.Method == http.MethodPost:
		srv.setPinned(w, r, sess, conv)
	case action == "archive" && r.Method == http.MethodPost:
		srv.setArchived(w, r, sess, conv)
	case action == "rename" && r.Method == http.MethodPost:
		srv.renameConversation(w, r, sess, conv)
	case action == "clear" && r.Method == http.MethodPost:
		srv.clearConversation(w, r, conv)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (srv *Server) getMessages(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	msgs, err := srv.store.GetMessages(r.Context(), conv.ID)
	if err != nil {
		srv.logger.Error("get messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Role:      m.Role,
			Content:   m.Content,
			Avatar:    m.Avatar,
			Timestamp: m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (srv *Server) setPinned(w http.ResponseWriter, r *http.Request, sess *session.Session, conv *store.Conversation) {
	var req struct {
		Pinned bool `json:"pinned"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.meta.Pin(r.Context(), sess.UserID, conv.ID, req.Pinned); err != nil {
		srv.logger.Error("pin failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) setArchived(w http.ResponseWriter, r *http.Request, sess *session.Session, conv *store.Conversation) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := srv.meta.Archive(r.Context(), sess.UserID, conv.ID, req.Archived); err != nil {
		srv.logger.Error("archive failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) renameConversation(w http.ResponseWriter, r *http.Request, sess *session.Session, conv *store.Conversation) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := srv.meta.Rename(r.Context(), sess.UserID, conv.ID, title); err != nil {
		srv.logger.Error("rename failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) clearConversation(w http.ResponseWriter, r *http.Request, conv *store.Conversation) {
	if err := srv.store.ClearMessages(r.Context(), conv.ID); err != nil {
		srv.logger.Error("clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) deleteConversation(w http.ResponseWriter, r *http.Request, sess *session.Session, conv *store.Conversation) {
	ctx := r.Context()
	if err := srv.store.DeleteConversation(ctx, conv.ID); err != nil {
		srv.logger.Error("delete failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Metadata cleanup is best effort; an orphaned blob is harmless because
	// conversation ids are never reused.
	if err := srv.meta.Clear(ctx, sess.UserID, conv.ID); err != nil {
		srv.logger.Warn("metadata cleanup failed", "conversation_id", conv.ID, "error", err)
	}
	if sess.ActiveConversation() == conv.ID {
		sess.SetActiveConversation("")
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChat feeds one message through the private-mode gate and, when it
// is ordinary content, runs a conversation turn.
func (srv *Server) handleChat(w http.ResponseWriter, r *http.Request, sess *session.Session, _ string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	transition, err := srv.gate.Check(ctx, sess, req.Message)
	if err != nil {
		srv.logger.Error("gate check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch transition {
	case session.TransitionEntered:
		writeJSON(w, http.StatusOK, chatResponse{Transition: "entered", Scope: sess.Scope()})
		return
	case session.TransitionExited:
		writeJSON(w, http.StatusOK, chatResponse{Transition: "exited", Scope: sess.Scope()})
		return
	}

	conv, err := srv.resolveChatConversation(ctx, sess, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		srv.logger.Error("conversation resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	sess.SetActiveConversation(conv.ID)

	reply, err := srv.engine.Turn(ctx, sess.UserID, sess.Scope(), conv.ID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message is required")
		case errors.Is(err, engine.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "too many messages, give me a moment")
		default:
			srv.logger.Error("turn failed", "conversation_id", conv.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Scope:          sess.Scope(),
		ConversationID: conv.ID,
		Reply: &messageView{
			Role:      reply.Role,
			Content:   reply.Content,
			Avatar:    reply.Avatar,
			Timestamp: reply.Timestamp,
		},
	})
}

// resolveChatConversation picks the thread for a chat message: an explicit
// id (ownership checked), then the session's active conversation, then a
// fresh default-titled thread.
func (srv *Server) resolveChatConversation(ctx context.Context, sess *session.Session, explicitID string) (*store.Conversation, error) {
	if explicitID != "" {
		return srv.loadOwnedConversation(ctx, sess, explicitID)
	}
	if active := sess.ActiveConversation(); active != "" {
		conv, err := srv.loadOwnedConversation(ctx, sess, active)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrConversationNotFound) {
			return nil, err
		}
		// Stale selection, fall through and start fresh.
	}
	return srv.store.CreateConversation(ctx, sess.UserID, engine.DefaultTitle, sess.Scope())
}
