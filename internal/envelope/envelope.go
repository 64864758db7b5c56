// Package envelope decodes the JSON event object a hook process receives on
// stdin into a typed, immutable record.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
)

// maxInputBytes caps stdin reads. Hook payloads are small JSON objects.
const maxInputBytes = 1 << 20

// ErrMalformed is returned when the input is not a single JSON object.
var ErrMalformed = errors.New("malformed hook input")

// ToolInput holds the tool_input fields the handlers care about.
type ToolInput struct {
	FilePath string
	Command  string
}

// Member is one top-level field exactly as it appeared in the input.
type Member struct {
	Key   string
	Value json.RawMessage
}

// Envelope is one lifecycle event as sent by the agent.
// It is created once per process and never mutated.
type Envelope struct {
	SessionID      string
	Kind           EventKind
	ToolName       string
	ToolInput      ToolInput
	Message        string
	StopHookActive bool
	ErrorMessage   string

	members []Member
	fields  map[string]any
}

// Parse reads one JSON object from r.
// Missing fields decode as zero values. Anything other than a single object
// is ErrMalformed; a known field of the wrong type is coerced, not rejected.
func Parse(r io.Reader) (*Envelope, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("envelope: read input: %w", err)
	}
	if len(data) > maxInputBytes {
		return nil, fmt.Errorf("%w: input exceeds %d bytes", ErrMalformed, maxInputBytes)
	}
	return Decode(data)
}

// Decode parses an already buffered JSON object.
func Decode(data []byte) (*Envelope, error) {
	members, err := decodeMembers(data)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(members))
	for _, m := range members {
		v, err := decodeValue(m.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, m.Key, err)
		}
		fields[m.Key] = v
	}

	env := &Envelope{
		SessionID:      stringField(fields["session_id"]),
		Kind:           EventKind(stringField(fields["hook_event_name"])),
		ToolName:       stringField(fields["tool_name"]),
		Message:        stringField(fields["message"]),
		StopHookActive: boolField(fields["stop_hook_active"]),
		ErrorMessage:   stringField(fields["error_message"]),
		members:        members,
		fields:         fields,
	}
	// tool_input is free-form per tool; only an object can carry file_path.
	if in, ok := fields["tool_input"].(map[string]any); ok {
		env.ToolInput = ToolInput{
			FilePath: stringField(in["file_path"]),
			Command:  stringField(in["command"]),
		}
	}
	return env, nil
}

// decodeMembers splits a JSON object into its members in input order. A key
// repeated later keeps its first position and takes the last value.
func decodeMembers(data []byte) ([]Member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}

	var members []Member
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected an object key", ErrMalformed)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		if i, dup := index[key]; dup {
			members[i].Value = raw
			continue
		}
		index[key] = len(members)
		members = append(members, Member{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	return members, nil
}

// decodeValue decodes raw keeping numbers as json.Number.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// stringField renders scalars as text; objects, arrays and null are empty.
func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// boolField accepts true/false and their string spellings.
func boolField(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

// Fields returns a copy of every top-level field of the original object.
// Numbers are json.Number so integers keep their exact value.
func (e *Envelope) Fields() map[string]any {
	if e == nil || e.fields == nil {
		return map[string]any{}
	}
	return maps.Clone(e.fields)
}

// Members returns the top-level fields in input order with their raw values.
func (e *Envelope) Members() []Member {
	if e == nil {
		return nil
	}
	out := make([]Member, len(e.members))
	for i, m := range e.members {
		out[i] = Member{Key: m.Key, Value: bytes.Clone(m.Value)}
	}
	return out
}

// IsToolEvent reports whether the envelope is a tool-scoped event that
// actually names a tool.
func (e *Envelope) IsToolEvent() bool {
	return e.Kind.IsToolScoped() && e.ToolName != ""
}
