package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/ppiankov/hookguard/internal/envelope"
)

// TimestampLayout is how the local wall clock is rendered in each entry.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry is one decoded log line: the rendered timestamp plus every field of
// the original event.
type Entry map[string]any

// Timestamp returns the rendered local timestamp.
func (e Entry) Timestamp() string { return e.str("timestamp") }

// Kind returns the hook_event_name of the logged event.
func (e Entry) Kind() string { return e.str("hook_event_name") }

// Tool returns the tool_name of the logged event.
func (e Entry) Tool() string { return e.str("tool_name") }

// SessionID returns the session_id of the logged event.
func (e Entry) SessionID() string { return e.str("session_id") }

func (e Entry) str(key string) string {
	s, _ := e[key].(string)
	return s
}

// ParseEntry decodes one log line.
func ParseEntry(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("entry is not a JSON object")
	}
	return e, nil
}

// encodeEntry renders one self-contained line: "timestamp" first, then the
// fields in key order. The rendered timestamp replaces a field of the same
// name. The result ends in exactly one newline.
func encodeEntry(timestamp string, fields map[string]any) ([]byte, error) {
	keys := slices.Sorted(maps.Keys(fields))
	members := make([]envelope.Member, 0, len(keys))
	for _, k := range keys {
		v, err := marshalValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("eventlog: encode %s: %w", k, err)
		}
		members = append(members, envelope.Member{Key: k, Value: v})
	}
	return encodeMembers(timestamp, members)
}

// encodeMembers renders "timestamp" first and then members in the given
// order with their values compacted but otherwise byte for byte.
func encodeMembers(timestamp string, members []envelope.Member) ([]byte, error) {
	ts, err := marshalValue(timestamp)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode timestamp: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(`{"timestamp":`)
	out.Write(ts)
	for _, m := range members {
		if m.Key == "timestamp" {
			continue
		}
		key, err := marshalValue(m.Key)
		if err != nil {
			return nil, fmt.Errorf("eventlog: encode key: %w", err)
		}
		out.WriteByte(',')
		out.Write(key)
		out.WriteByte(':')
		if err := json.Compact(&out, m.Value); err != nil {
			return nil, fmt.Errorf("eventlog: encode %s: %w", m.Key, err)
		}
	}
	out.WriteString("}\n")
	return out.Bytes(), nil
}

// marshalValue encodes v on one line without HTML escaping.
func marshalValue(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(b.Bytes(), []byte("\n")), nil
}
