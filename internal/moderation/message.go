package moderation

import (
	"strings"
	"time"
)

// Message is the platform-neutral view of one chat message. It is built by
// the transport adapter and not modified during evaluation.
type Message struct {
	ID             string
	ChatID         string
	SenderID       string
	SenderName     string
	SenderUsername string
	Text           string
	Links          []string // links the platform already extracted, if any
	SentAt         time.Time
	Forwarded      bool
	SenderIsAdmin  bool
}

// Identity is the display name and handle joined for keyword checks.
func (m *Message) Identity() string {
	return strings.TrimSpace(m.SenderName + " " + m.SenderUsername)
}
