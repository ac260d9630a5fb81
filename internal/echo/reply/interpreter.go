// Package reply parses raw model output into a structured result.
//
// The generation capability is untrusted free text: the model may wrap its
// JSON object in prose, drop fields, or emit no JSON at all. This package
// absorbs that unreliability — interpretation never faults, it only
// degrades. Any decode failure falls back to treating the whole raw output
// as the response text.
package reply

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/avvaruyasaswini/Echo/internal/echo/prompt"
)

// InterruptSentinel is the response value the model emits as a control
// directive instead of content. The orchestrator substitutes a fixed calming
// intervention message when it is seen.
const InterruptSentinel = "INTERRUPT"

// replySchema validates well-formed model output. Compiled once at package
// init from the contract the prompt package declares.
var replySchema = jsonschema.MustCompileString("reply.json", prompt.ReplySchema)

// Result is the structured interpretation of one raw model output.
type Result struct {
	// Sentiment is the model's read of the user's emotional state. Empty
	// when absent from the output.
	Sentiment string

	// Strengths are personal strengths the model noticed this turn.
	Strengths []string

	// Facts are durable personal details the model noticed this turn.
	Facts []string

	// ResponseText is the assistant's reply. When no JSON object can be
	// extracted this is the raw model output verbatim.
	ResponseText string

	// IsInterrupt is true when the model emitted the interrupt control
	// directive instead of ordinary content.
	IsInterrupt bool
}

// Interpret parses raw model output. It locates the first "{" and the last
// "}" and treats the enclosed substring as a candidate JSON object; fields
// that are absent or of the wrong shape default rather than fail. When no
// parseable object exists the raw text is returned verbatim as the response.
func Interpret(raw string) Result {
	fallback := Result{ResponseText: raw}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fallback
	}
	candidate := raw[start : end+1]

	var decoded map[string]any
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		slog.Debug("reply: candidate is not a JSON object, returning raw text", "err", err)
		return fallback
	}

	// Validation picks the decode path. Well-formed output goes straight
	// into the typed contract; deviations are expected from an untrusted
	// model and only demote the output to per-field extraction, never to a
	// failure.
	if err := replySchema.Validate(decoded); err == nil {
		var wire wireReply
		if err := json.Unmarshal([]byte(candidate), &wire); err == nil {
			return Result{
				Sentiment:    wire.Sentiment,
				Strengths:    dropBlanks(wire.Strengths),
				Facts:        dropBlanks(wire.FactsLearned),
				ResponseText: wire.Response,
				IsInterrupt:  strings.TrimSpace(wire.Response) == InterruptSentinel,
			}
		}
	} else {
		slog.Debug("reply: model output deviates from contract", "err", err)
	}

	result := Result{
		Sentiment: stringField(decoded, "sentiment"),
		Strengths: stringListField(decoded, "strengths"),
		Facts:     stringListField(decoded, "facts_learned"),
	}

	response, ok := decoded["response"].(string)
	if !ok {
		// Object parsed but carries no usable response — fall back to the
		// entire raw output so the user still sees something.
		response = raw
	}
	result.ResponseText = response

	if strings.TrimSpace(response) == InterruptSentinel {
		result.IsInterrupt = true
	}

	return result
}

// wireReply is the declared output contract. Only schema-validated
// candidates are decoded through it; everything else goes through the
// per-field extractors below.
type wireReply struct {
	Sentiment    string   `json:"sentiment"`
	Strengths    []string `json:"strengths"`
	FactsLearned []string `json:"facts_learned"`
	Response     string   `json:"response"`
}

// dropBlanks removes empty entries, returning nil for an empty list so both
// decode paths report absent lists the same way.
func dropBlanks(list []string) []string {
	var out []string
	for _, s := range list {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringField extracts a string-typed field, defaulting to "".
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// stringListField extracts an array-of-strings field, skipping non-string
// elements and defaulting to nil for absent or wrong-shape values.
func stringListField(m map[string]any, key string) []string {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
