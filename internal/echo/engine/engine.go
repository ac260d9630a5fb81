// Package engine runs Echo's conversation turns.
//
// The Orchestrator is the control loop between the stores, the prompt
// compiler, the model provider, and the reply interpreter. A turn moves
// Idle -> AwaitingReply -> Integrating -> Idle; whatever the model or the
// store does along the way, the turn ends with an assistant message in the
// conversation log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avvaruyasaswini/Echo/internal/echo/llm"
	"github.com/avvaruyasaswini/Echo/internal/echo/prompt"
	"github.com/avvaruyasaswini/Echo/internal/echo/reply"
	"github.com/avvaruyasaswini/Echo/internal/echo/store"
)

// Memory keys the orchestrator maintains. Strengths always live in the
// public scope; facts follow the active scope of the turn.
const (
	StrengthsKey = "strengths"
	FactsKey     = "facts"
)

// DefaultTitle is the placeholder for brand-new conversations. Titles of
// this form (or the sidebar's numbered "Chat #n" form) mark a conversation
// as eligible for first-exchange auto-titling.
const DefaultTitle = "New Chat"

const (
	// interruptMessage replaces the model's text when it signals acute
	// distress. Wording mirrors the box-breathing guidance from the wellness
	// panel.
	interruptMessage = "Let's pause together for a moment. Try a slow breath with me: inhale for four seconds, hold for four, exhale for four. I'm right here, and we can continue whenever you're ready."

	// fallbackMessage is appended when generation or persistence fails
	// mid-turn. The turn still completes.
	fallbackMessage = "I'm having trouble connecting right now. Please give me a moment and try again."
)

// ErrEmptyMessage is returned for a message that is empty after trimming.
var ErrEmptyMessage = errors.New("engine: empty message")

// ErrRateLimited is returned when the per-user generation budget is spent.
// The user message is not persisted; callers should ask the user to retry.
var ErrRateLimited = errors.New("engine: rate limited")

// contextWindow is how many trailing messages feed the prompt context.
const contextWindow = 10

// Orchestrator executes conversation turns against a store and a model
// provider. Safe for concurrent use across sessions; the caller serializes
// turns within one conversation.
type Orchestrator struct {
	store    *store.Store
	provider llm.Provider
	limiter  *llm.RateLimiter
	logger   *slog.Logger
}

// New creates an Orchestrator. The limiter may be nil to disable per-user
// generation throttling.
func New(s *store.Store, provider llm.Provider, limiter *llm.RateLimiter) *Orchestrator {
	return &Orchestrator{
		store:    s,
		provider: provider,
		limiter:  limiter,
		logger:   slog.Default().With("component", "engine"),
	}
}

// Turn runs one full conversation turn: persist the user message, assemble
// context, generate, interpret, integrate memories, append the assistant
// reply, and auto-title the first exchange. The scope names where facts are
// read and written; it must match the conversation's scope.
//
// Faults after the user message is persisted never abort the turn: they are
// logged and converted into a fixed fallback reply. The returned message is
// the assistant message appended to the conversation.
func (o *Orchestrator) Turn(ctx context.Context, userID, scope, conversationID, message string) (*store.Message, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	if o.limiter != nil && !o.limiter.Allow(userID) {
		return nil, ErrRateLimited
	}

	if _, err := o.store.AddMessage(ctx, conversationID, store.RoleUser, trimmed, store.RoleUser); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	contextText, err := o.assembleContext(ctx, userID, scope, conversationID)
	if err != nil {
		return o.failTurn(ctx, conversationID, "context assembly failed", err)
	}

	raw, err := o.provider.Generate(ctx, prompt.Compile(trimmed, contextText), llm.DefaultTemperature)
	if err != nil {
		return o.failTurn(ctx, conversationID, "generation failed", err)
	}

	result := reply.Interpret(raw)

	responseText := result.ResponseText
	if result.IsInterrupt {
		responseText = interruptMessage
	} else if err := o.integrateMemories(ctx, userID, scope, result); err != nil {
		return o.failTurn(ctx, conversationID, "memory integration failed", err)
	}

	msg, err := o.store.AddMessage(ctx, conversationID, store.RoleAssistant, responseText, store.RoleAssistant)
	if err != nil {
		return o.failTurn(ctx, conversationID, "failed to append reply", err)
	}

	o.maybeTitle(ctx, conversationID, trimmed, responseText)

	return msg, nil
}

// failTurn logs a mid-turn fault and closes the turn with the fixed
// fallback reply. Only a failure to append that fallback surfaces as an
// error.
func (o *Orchestrator) failTurn(ctx context.Context, conversationID, what string, cause error) (*store.Message, error) {
	o.logger.Error(what, "conversation_id", conversationID, "error", cause)

	msg, err := o.store.AddMessage(ctx, conversationID, store.RoleAssistant, fallbackMessage, store.RoleAssistant)
	if err != nil {
		return nil, fmt.Errorf("failed to append fallback message: %w", err)
	}
	return msg, nil
}

// assembleContext builds the prompt context: recalled strengths (public
// scope, always), recalled facts (active scope), then the content of the
// last messages, including the just-persisted user message, joined with
// single spaces.
func (o *Orchestrator) assembleContext(ctx context.Context, userID, scope, conversationID string) (string, error) {
	var parts []string

	strengths, ok, err := o.store.RecallStrings(ctx, userID, store.ScopePublic, StrengthsKey)
	if err != nil {
		return "", err
	}
	if ok && len(strengths) > 0 {
		parts = append(parts, "Known strengths: "+strings.Join(strengths, "; "))
	}

	facts, ok, err := o.store.RecallStrings(ctx, userID, scope, FactsKey)
	if err != nil {
		return "", err
	}
	if ok && len(facts) > 0 {
		parts = append(parts, "Known facts: "+strings.Join(facts, "; "))
	}

	messages, err := o.store.GetMessages(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if len(messages) > contextWindow {
		messages = messages[len(messages)-contextWindow:]
	}
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	if len(contents) > 0 {
		parts = append(parts, strings.Join(contents, " "))
	}

	return strings.Join(parts, "\n"), nil
}

// integrateMemories folds newly noticed strengths and facts into the
// stored lists. Strengths always go to the public scope; facts follow the
// turn's scope. Empty extractions leave stored memory untouched.
func (o *Orchestrator) integrateMemories(ctx context.Context, userID, scope string, result reply.Result) error {
	if len(result.Strengths) > 0 {
		existing, _, err := o.store.RecallStrings(ctx, userID, store.ScopePublic, StrengthsKey)
		if err != nil {
			return err
		}
		if err := o.store.Remember(ctx, userID, store.ScopePublic, StrengthsKey, mergeUnique(existing, result.Strengths)); err != nil {
			return err
		}
	}

	if len(result.Facts) > 0 {
		existing, _, err := o.store.RecallStrings(ctx, userID, scope, FactsKey)
		if err != nil {
			return err
		}
		if err := o.store.Remember(ctx, userID, scope, FactsKey, mergeUnique(existing, result.Facts)); err != nil {
			return err
		}
	}

	return nil
}

// maybeTitle runs first-exchange auto-titling: a default-titled
// conversation holding exactly the first user/assistant pair gets one
// title-generation call. Best effort throughout; a failure here never
// disturbs the completed turn.
func (o *Orchestrator) maybeTitle(ctx context.Context, conversationID, userMessage, replyText string) {
	title, err := o.store.GetConversationTitle(ctx, conversationID)
	if err != nil || !IsDefaultTitle(title) {
		return
	}

	count, err := o.store.CountMessages(ctx, conversationID)
	if err != nil || count != 2 {
		return
	}

	raw, err := o.provider.Generate(ctx, prompt.TitlePrompt(userMessage, replyText), llm.DefaultTemperature)
	if err != nil {
		o.logger.Warn("title generation failed", "conversation_id", conversationID, "error", err)
		return
	}

	newTitle := strings.Trim(strings.TrimSpace(raw), `"'`)
	if newTitle == "" {
		return
	}
	if err := o.store.UpdateTitle(ctx, conversationID, newTitle); err != nil {
		o.logger.Warn("title update failed", "conversation_id", conversationID, "error", err)
	}
}

// IsDefaultTitle reports whether a title is a placeholder eligible for
// auto-titling ("New Chat" or the sidebar's numbered "Chat #n" form).
func IsDefaultTitle(title string) bool {
	return title == DefaultTitle || strings.HasPrefix(title, "Chat #")
}

// mergeUnique appends incoming values to existing ones, dropping
// duplicates and blank entries while preserving first-seen order.
func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, v := range append(existing, incoming...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged
}
