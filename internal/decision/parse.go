package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyResponse means the advisor returned nothing that looks like JSON.
	ErrEmptyResponse = errors.New("decision: empty response")
	// ErrMissingKeys means the object lacks an actions list or an impact object.
	ErrMissingKeys = errors.New("decision: missing actions or impact")
	// ErrInvalidAction means an action type is outside the allowed set.
	ErrInvalidAction = errors.New("decision: invalid action")
)

// wireDecision mirrors the advisor's output format. Pointers distinguish an
// absent (or null) key from an empty one.
type wireDecision struct {
	Actions *[]Action `json:"actions"`
	Impact  *Impact   `json:"impact"`
}

// Parse validates raw advisor text and builds a Decision for agent. Either the
// whole response is accepted or an error is returned; a single disallowed
// action type rejects everything.
func Parse(agent, raw string, now time.Time) (Decision, error) {
	body := ExtractJSON(raw)
	if body == "" {
		if strings.Contains(raw, "{") {
			return Decision{}, fmt.Errorf("decision: parse: no complete JSON object in response")
		}
		return Decision{}, ErrEmptyResponse
	}

	var w wireDecision
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Decision{}, fmt.Errorf("decision: parse: %w", err)
	}
	if w.Actions == nil || w.Impact == nil {
		return Decision{}, ErrMissingKeys
	}

	actions := make([]Action, 0, len(*w.Actions))
	for i, a := range *w.Actions {
		if !a.Type.Valid() {
			return Decision{}, fmt.Errorf("%w %q at index %d", ErrInvalidAction, a.Type, i)
		}
		actions = append(actions, a)
	}

	return Decision{
		Agent:       agent,
		GeneratedAt: now.UTC(),
		Actions:     actions,
		Impact:      *w.Impact,
	}, nil
}

// ExtractJSON pulls the JSON object out of advisor text. A response that is
// already a valid object is used as is. A response opening with a code fence
// is unwrapped. Otherwise the first '{' that begins a complete object wins,
// which skips reasoning preambles and trailing prose. It returns "" when the
// text holds no complete object.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if isObject(text) {
		return text
	}

	if strings.HasPrefix(text, "```") {
		body := text[3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		if body = strings.TrimSpace(body); isObject(body) {
			return body
		}
	}

	for i := strings.IndexByte(text, '{'); i >= 0; {
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil {
			return string(obj)
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return ""
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// Fallback builds the safe decision used when every attempt failed: no
// actions, zero impact, a note naming the agent and the cause, and the last
// raw response kept for audit.
func Fallback(agent string, attempts int, lastRaw string, cause error, now time.Time) Decision {
	reason := "no response"
	if cause != nil {
		reason = cause.Error()
	}
	return Decision{
		Agent:       agent,
		GeneratedAt: now.UTC(),
		Actions:     []Action{},
		Impact: Impact{
			Notes: fmt.Sprintf("%s failed after %d attempt(s): %s", agent, attempts, reason),
		},
		Attempts:    attempts,
		Fallback:    true,
		RawResponse: rawForAudit(lastRaw),
	}
}

// rawForAudit keeps valid JSON as-is and wraps anything else as
// {"raw_string": "..."}.
func rawForAudit(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(map[string]string{"raw_string": raw})
	return b
}
