package reply_test

import (
	"reflect"
	"testing"

	"github.com/avvaruyasaswini/Echo/internal/echo/reply"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want reply.Result
	}{
		{
			name: "json wrapped in prose",
			raw:  `Sure! {"response":"Hi there","strengths":[],"facts_learned":[]} thanks`,
			want: reply.Result{ResponseText: "Hi there"},
		},
		{
			name: "plain text without braces",
			raw:  "plain sentence with no braces",
			want: reply.Result{ResponseText: "plain sentence with no braces"},
		},
		{
			name: "interrupt sentinel",
			raw:  `{"response":"INTERRUPT"}`,
			want: reply.Result{ResponseText: "INTERRUPT", IsInterrupt: true},
		},
		{
			name: "full structured output",
			raw:  `{"sentiment":"hopeful","strengths":["persistent"],"facts_learned":["city: Lisbon"],"response":"Nice!"}`,
			want: reply.Result{
				Sentiment:    "hopeful",
				Strengths:    []string{"persistent"},
				Facts:        []string{"city: Lisbon"},
				ResponseText: "Nice!",
			},
		},
		{
			name: "malformed json falls back to raw",
			raw:  `{"response": "unterminated`,
			want: reply.Result{ResponseText: `{"response": "unterminated`},
		},
		{
			name: "object without response falls back to raw",
			raw:  `{"sentiment":"low"}`,
			want: reply.Result{Sentiment: "low", ResponseText: `{"sentiment":"low"}`},
		},
		{
			name: "wrong-shape fields default to empty",
			raw:  `{"response":"ok","strengths":"not a list","facts_learned":{"nope":1}}`,
			want: reply.Result{ResponseText: "ok"},
		},
		{
			name: "non-string list elements are skipped",
			raw:  `{"response":"ok","facts_learned":["real fact", 42, null]}`,
			want: reply.Result{ResponseText: "ok", Facts: []string{"real fact"}},
		},
		{
			name: "blank list entries are dropped from well-formed output",
			raw:  `{"response":"ok","strengths":["","steady"],"facts_learned":[""]}`,
			want: reply.Result{ResponseText: "ok", Strengths: []string{"steady"}},
		},
		{
			name: "interrupt with surrounding whitespace",
			raw:  `{"response":"  INTERRUPT  "}`,
			want: reply.Result{ResponseText: "  INTERRUPT  ", IsInterrupt: true},
		},
		{
			name: "empty input",
			raw:  "",
			want: reply.Result{ResponseText: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reply.Interpret(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Interpret(%q)\n got: %+v\nwant: %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestInterpret_NeverPanics(t *testing.T) {
	// A grab bag of hostile inputs — interpretation must always degrade,
	// never fault.
	inputs := []string{
		"{",
		"}",
		"}{",
		"{{{{",
		`{"response": {"nested": "object"}}`,
		"\x00\x01{\"response\"",
		`prefix {} suffix`,
	}
	for _, raw := range inputs {
		got := reply.Interpret(raw)
		if got.IsInterrupt {
			t.Errorf("Interpret(%q) should not signal interrupt", raw)
		}
	}
}
