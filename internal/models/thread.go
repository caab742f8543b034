package models

import (
	"sort"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTitle is the title a thread carries until its first message.
const DefaultTitle = "New Chat"

// Ellipsis marks a truncated title or preview.
const Ellipsis = "..."

// Message represents a single chat message
type Message struct {
	Role    Role
	Content string
	Time    time.Time
}

// Thread represents a persisted conversation with its display metadata
type Thread struct {
	ID          string
	Title       string
	LastMessage string
	Timestamp   time.Time
	Messages    []Message
}

// Title derives a thread title from the first message. Content longer than
// max runes keeps its first max runes followed by Ellipsis.
func Title(content string, max int) string {
	if max <= 0 || utf8.RuneCountInString(content) <= max {
		return content
	}
	return string([]rune(content)[:max]) + Ellipsis
}

// Summarize returns the last message content and the timestamp a thread must
// carry for the given message list. An empty list yields "" and fallback.
func Summarize(messages []Message, fallback time.Time) (string, time.Time) {
	if len(messages) == 0 {
		return "", fallback
	}
	last := messages[len(messages)-1]
	return last.Content, last.Time
}

// SortNewestFirst orders threads by descending timestamp. Equal timestamps
// keep their relative order.
func SortNewestFirst(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].Timestamp.After(threads[j].Timestamp)
	})
}

// Find returns the thread with the given id.
func Find(threads []Thread, id string) (Thread, bool) {
	for _, t := range threads {
		if t.ID == id {
			return t, true
		}
	}
	return Thread{}, false
}

// CloneMessages copies a message list so callers never share backing arrays.
func CloneMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return []Message{}
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Clone returns a deep copy of the thread.
func (t Thread) Clone() Thread {
	t.Messages = CloneMessages(t.Messages)
	return t
}

// Preview shortens the last message for the thread list.
func (t Thread) Preview(max int) string {
	if t.LastMessage == "" {
		return "New conversation"
	}
	if max > len(Ellipsis) && utf8.RuneCountInString(t.LastMessage) > max {
		return string([]rune(t.LastMessage)[:max-len(Ellipsis)]) + Ellipsis
	}
	return t.LastMessage
}
