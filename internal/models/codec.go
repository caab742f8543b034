package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// wireMessage is the stored form of a Message. Timestamps are epoch millis.
type wireMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Millis converts an instant to the epoch milliseconds kept by the store.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// EncodeMessages renders messages as a JSON object keyed by append index.
// An empty list encodes to nil, which the stores persist as absent.
func EncodeMessages(messages []Message) ([]byte, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	bag := make(map[string]wireMessage, len(messages))
	for i, m := range messages {
		bag[strconv.Itoa(i)] = wireMessage{Role: m.Role, Content: m.Content, Timestamp: Millis(m.Time)}
	}
	return json.Marshal(bag)
}

// DecodeMessages parses a stored message bag. Absent, null and empty values
// decode to an empty list. Both object and array forms are accepted.
func DecodeMessages(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Message{}, nil
	}

	var ordered []wireMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &ordered); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	case '{':
		var bag map[string]wireMessage
		if err := json.Unmarshal(data, &bag); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		keys := make([]string, 0, len(bag))
		for k := range bag {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
		ordered = make([]wireMessage, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, bag[k])
		}
	default:
		return nil, fmt.Errorf("decode messages: unexpected %q", data[0])
	}

	out := make([]Message, 0, len(ordered))
	for _, w := range ordered {
		if w.Role != RoleUser && w.Role != RoleAssistant {
			return nil, fmt.Errorf("decode messages: unknown role %q", w.Role)
		}
		out = append(out, Message{Role: w.Role, Content: w.Content, Time: FromMillis(w.Timestamp)})
	}
	return out, nil
}

// keyLess orders integer keys numerically ahead of any other key, which are
// ordered lexically.
func keyLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}
