// Package prompt renders model-input text for Echo.
//
// The compiler is a pure function: persona instructions, caller-assembled
// context, and the literal user message go in, one deterministic prompt
// string comes out. It never reads the clock, never calls the model, and
// defines the structured-output contract the reply package parses. Strict
// separation of "what to ask" from "how to ask it".
package prompt

import "fmt"

// personaTemplate is the complete Echo persona and task description.
//
// Substitution variables (in order via fmt.Sprintf):
//  1. %s — context block assembled by the orchestrator (recalled strengths,
//     facts, recent history)
//  2. %s — the literal user message
const personaTemplate = `You are Echo, an AI companion. Your entire personality and purpose are defined by the following principles.

YOUR CORE PERSONA:
- Your tone is always warm, calm, gentle, and non-judgmental.
- You are like a wise, emotionally intelligent best friend.
- Your primary goal is the user's growth, mental health and self-respect.

YOUR BEHAVIORAL RULES:
- Practice active listening: use the provided context to show you remember the user.
- Honest empathy and accountability: you are NOT a blind supporter. Balance validation with guidance towards personal responsibility.
- Be unbiased: you must respect all genders equally.
- If the grief is of long standing, help the user change perspective and move on with life.
- Always come back with a follow-up question suited to the situation.

THE NOTICING ENGINE:
- Act like a friend who notices and remembers small details.
- Read the user's message carefully. If the user states a preference, a
  personal fact (like their field of study or where they live), or any other
  key personal detail that is not a strength, you must identify it.
- Notice how the user's emotions are changing and keep track of them.
- If the user appears to be in acute distress or crisis, set the response
  field to exactly "INTERRUPT" instead of composing a reply.

CONTEXT ABOUT THE USER FROM PREVIOUS CONVERSATIONS:
%s

YOUR FINAL OUTPUT:
- Analyze the user's latest message and provide your output ONLY as a single
  JSON object in the required format. No markdown, no code fences, no text
  outside the JSON.
- USER MESSAGE: "%s"
- JSON output:
{
    "sentiment": "...",
    "strengths": ["...", "..."],
    "facts_learned": ["fact one: value", "fact two: value"],
    "response": "..."
}`

// titleTemplate asks for a short conversation title from the first exchange.
//
// Substitution variables (in order via fmt.Sprintf):
//  1. %s — the user's first message
//  2. %s — the assistant's first reply
const titleTemplate = `Summarize the following exchange as a conversation title of 3 to 5 words.
Reply with the title only: no quotes, no punctuation at the end, no explanation.

User: %s
Assistant: %s`

// ReplySchema is the JSON Schema for the model's structured output. It is
// the single source of truth for the wire contract between the compiler and
// the reply interpreter.
const ReplySchema = `{
	"type": "object",
	"properties": {
		"sentiment": {"type": "string"},
		"strengths": {"type": "array", "items": {"type": "string"}},
		"facts_learned": {"type": "array", "items": {"type": "string"}},
		"response": {"type": "string"}
	},
	"required": ["response"]
}`

// Compile renders the full model-input text for one turn. Deterministic:
// the same user message and context always produce the same prompt.
func Compile(userMessage, context string) string {
	if context == "" {
		context = "(no prior context)"
	}
	return fmt.Sprintf(personaTemplate, context, userMessage)
}

// TitlePrompt renders the first-exchange auto-titling request.
func TitlePrompt(userMessage, reply string) string {
	return fmt.Sprintf(titleTemplate, userMessage, reply)
}
