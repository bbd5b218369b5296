package messaging

import (
	"strings"
	"time"
)

// Platform is the chat client capability the bot acts through.
type Platform interface {
	GetAdmins(chatID string) ([]string, error)
	Ban(chatID, userID string) error
	Mute(chatID, userID string, until time.Time) error
	DeleteMessage(chatID, messageID string) error
	SendMessage(msg *OutgoingMessage) (string, error)
	SendMedia(media *OutgoingMedia) (string, error)
	Start(handler MessageHandler) error
	Stop()
}

// Publisher is the narrow capability scheduled announcements need.
type Publisher interface {
	SendMessage(msg *OutgoingMessage) (string, error)
	PinMessage(chatID, messageID string) error
}

type MessageHandler func(msg *IncomingMessage) error

type IncomingMessage struct {
	ChatID    string
	MessageID string
	From      User
	Text      string // message text, or the media caption when there is no text
	Timestamp time.Time

	ChatType ChatType
	// Links holds URLs carried by url and text_link entities.
	Links     []string
	Forwarded bool
	// AutomaticForward marks a post copied in from the group's linked
	// channel.
	AutomaticForward bool
	// SenderChat is set when the message was sent on behalf of a chat: the
	// group itself for an anonymous admin, or a channel. From then holds a
	// placeholder account shared by every such sender.
	SenderChat *Chat
}

// Chat identifies a chat posting into another one.
type Chat struct {
	ID       string
	Title    string
	Username string
}

// IsAnonymousAdmin reports a message posted as the group itself.
func (m *IncomingMessage) IsAnonymousAdmin() bool {
	return m.SenderChat != nil && m.SenderChat.ID == m.ChatID
}

// IsChannelSender reports a message posted on behalf of another chat.
func (m *IncomingMessage) IsChannelSender() bool {
	return m.SenderChat != nil && m.SenderChat.ID != "" && m.SenderChat.ID != m.ChatID
}

// SenderID is the id moderation acts on: the sender chat for channel
// posts, the user otherwise.
func (m *IncomingMessage) SenderID() string {
	if m.IsChannelSender() {
		return m.SenderChat.ID
	}
	return m.From.ID
}

// SenderName and SenderUsername describe whoever SenderID identifies.
func (m *IncomingMessage) SenderName() string {
	if m.IsChannelSender() {
		return m.SenderChat.Title
	}
	return m.From.DisplayName()
}

func (m *IncomingMessage) SenderUsername() string {
	if m.IsChannelSender() {
		return m.SenderChat.Username
	}
	return m.From.Username
}

type ParseMode string

const (
	ParseModeNone ParseMode = ""
	ParseModeHTML ParseMode = "HTML"
)

// OutgoingMessage represents a message to be sent by the bot
type OutgoingMessage struct {
	ChatID              string
	Text                string
	ParseMode           ParseMode
	ReplyToMessageID    string // Optional: message ID to reply to (empty = no reply)
	DisableNotification bool
}

type MediaKind string

const (
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

// OutgoingMedia is a local file sent with an optional caption.
type OutgoingMedia struct {
	ChatID  string
	Path    string
	Kind    MediaKind
	Caption string
}

type User struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

func (ct ChatType) String() string {
	return string(ct)
}
