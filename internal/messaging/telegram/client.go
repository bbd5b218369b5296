package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rg/arcguard/internal/messaging"
)

// MaxMessageLength is Telegram's limit for a single text message.
const MaxMessageLength = 4096

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Client struct {
	bot      botAPI
	username string
}

func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot.Debug = false
	slog.Info("Authorized on Telegram account", "username", bot.Self.UserName)

	return &Client{
		bot:      bot,
		username: bot.Self.UserName,
	}, nil
}

func (c *Client) Username() string {
	return c.username
}

func (c *Client) GetAdmins(chatID string) ([]string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	members, err := c.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat administrators: %w", err)
	}

	admins := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			admins = append(admins, strconv.FormatInt(m.User.ID, 10))
		}
	}
	return admins, nil
}

// Ban removes a user from the chat for good. A negative id is a channel
// posting into the group; the channel is banned from posting instead.
func (c *Client) Ban(chatID, userID string) error {
	member, err := memberConfig(chatID, userID)
	if err != nil {
		return err
	}

	if isSenderChat(member.UserID) {
		return c.banSenderChat(member, time.Time{})
	}
	if _, err := c.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return fmt.Errorf("failed to ban user %s: %w", userID, err)
	}
	return nil
}

// Mute revokes every send permission until the given time. Channels cannot
// be restricted, so a channel is banned from posting until then instead.
func (c *Client) Mute(chatID, userID string, until time.Time) error {
	member, err := memberConfig(chatID, userID)
	if err != nil {
		return err
	}

	if isSenderChat(member.UserID) {
		return c.banSenderChat(member, until)
	}

	restrict := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: member,
		UntilDate:        until.Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if _, err := c.bot.Request(restrict); err != nil {
		return fmt.Errorf("failed to mute user %s: %w", userID, err)
	}
	return nil
}

// banSenderChat bans a channel from posting in the chat. A zero until is
// permanent.
func (c *Client) banSenderChat(member tgbotapi.ChatMemberConfig, until time.Time) error {
	config := tgbotapi.BanChatSenderChatConfig{
		ChatID:       member.ChatID,
		SenderChatID: member.UserID,
	}
	if !until.IsZero() {
		config.UntilDate = int(until.Unix())
	}
	if _, err := c.bot.Request(config); err != nil {
		return fmt.Errorf("failed to ban sender chat %d: %w", member.UserID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(chatID, messageID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}

	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(id, msgID)); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

func (c *Client) SendMessage(out *messaging.OutgoingMessage) (string, error) {
	id, err := parseChatID(out.ChatID)
	if err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(id, out.Text)
	msg.ParseMode = string(out.ParseMode)
	msg.DisableWebPagePreview = true
	msg.DisableNotification = out.DisableNotification
	if out.ReplyToMessageID != "" {
		if replyTo, err := strconv.Atoi(out.ReplyToMessageID); err == nil {
			msg.ReplyToMessageID = replyTo
		}
	}

	sent, err := c.bot.Send(msg)
	if err != nil && out.ParseMode != messaging.ParseModeNone {
		// retry as plain text when the markup is rejected
		msg.ParseMode = string(messaging.ParseModeNone)
		sent, err = c.bot.Send(msg)
	}
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return strconv.Itoa(sent.MessageID), nil
}

func (c *Client) SendMedia(media *messaging.OutgoingMedia) (string, error) {
	id, err := parseChatID(media.ChatID)
	if err != nil {
		return "", err
	}

	file := tgbotapi.FilePath(media.Path)
	var chattable tgbotapi.Chattable
	switch media.Kind {
	case messaging.MediaImage:
		photo := tgbotapi.NewPhoto(id, file)
		photo.Caption = media.Caption
		chattable = photo
	case messaging.MediaVideo:
		video := tgbotapi.NewVideo(id, file)
		video.Caption = media.Caption
		chattable = video
	default:
		animation := tgbotapi.NewAnimation(id, file)
		animation.Caption = media.Caption
		chattable = animation
	}

	sent, err := c.bot.Send(chattable)
	if err != nil {
		return "", fmt.Errorf("failed to send %s: %w", media.Kind, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (c *Client) PinMessage(chatID, messageID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}

	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              id,
		MessageID:           msgID,
		DisableNotification: true,
	}
	if _, err := c.bot.Request(pin); err != nil {
		return fmt.Errorf("failed to pin message %s: %w", messageID, err)
	}
	return nil
}

// Start polls for updates and calls handler for each message in arrival
// order. It returns when Stop is called.
func (c *Client) Start(handler messaging.MessageHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message"}

	updates := c.bot.GetUpdatesChan(u)

	slog.Info("Telegram bot started, listening for messages")

	for update := range updates {
		if update.Message == nil {
			continue
		}

		msg := convertMessage(update.Message)
		if err := handler(msg); err != nil {
			slog.Error("Error handling message", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		}
	}

	return nil
}

func (c *Client) Stop() {
	c.bot.StopReceivingUpdates()
}

func convertMessage(tgMsg *tgbotapi.Message) *messaging.IncomingMessage {
	text, entities := tgMsg.Text, tgMsg.Entities
	if text == "" {
		text, entities = tgMsg.Caption, tgMsg.CaptionEntities
	}

	msg := &messaging.IncomingMessage{
		ChatID:    strconv.FormatInt(tgMsg.Chat.ID, 10),
		MessageID: strconv.Itoa(tgMsg.MessageID),
		Text:      text,
		Timestamp: time.Unix(int64(tgMsg.Date), 0),
		ChatType:  convertChatType(tgMsg.Chat.Type),
		Links:     extractLinks(text, entities),
		Forwarded: isForwarded(tgMsg),

		AutomaticForward: tgMsg.IsAutomaticForward,
	}

	if tgMsg.From != nil {
		msg.From = messaging.User{
			ID:        strconv.FormatInt(tgMsg.From.ID, 10),
			Username:  tgMsg.From.UserName,
			FirstName: tgMsg.From.FirstName,
			LastName:  tgMsg.From.LastName,
			IsBot:     tgMsg.From.IsBot,
		}
	}
	if tgMsg.SenderChat != nil {
		msg.SenderChat = &messaging.Chat{
			ID:       strconv.FormatInt(tgMsg.SenderChat.ID, 10),
			Title:    tgMsg.SenderChat.Title,
			Username: tgMsg.SenderChat.UserName,
		}
	}

	return msg
}

// isForwarded reports a forward by a member. Linked-channel posts copied
// into the discussion group carry forward fields too but are not forwards.
func isForwarded(tgMsg *tgbotapi.Message) bool {
	if tgMsg.IsAutomaticForward {
		return false
	}
	return tgMsg.ForwardFrom != nil ||
		tgMsg.ForwardFromChat != nil ||
		tgMsg.ForwardSenderName != "" ||
		tgMsg.ForwardDate != 0
}

// extractLinks returns the URLs carried by url and text_link entities.
// Entity offsets count UTF-16 code units.
func extractLinks(text string, entities []tgbotapi.MessageEntity) []string {
	var links []string
	var encoded []uint16

	for _, e := range entities {
		switch e.Type {
		case "text_link":
			if e.URL != "" {
				links = append(links, e.URL)
			}
		case "url":
			if encoded == nil {
				encoded = utf16.Encode([]rune(text))
			}
			end := e.Offset + e.Length
			if e.Offset < 0 || e.Length <= 0 || end > len(encoded) {
				continue
			}
			links = append(links, string(utf16.Decode(encoded[e.Offset:end])))
		}
	}

	return links
}

func convertChatType(tgType string) messaging.ChatType {
	switch tgType {
	case "private":
		return messaging.ChatTypePrivate
	case "group", "supergroup":
		return messaging.ChatTypeGroup
	case "channel":
		return messaging.ChatTypeChannel
	default:
		return messaging.ChatTypePrivate
	}
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID: %w", err)
	}
	return id, nil
}

// Users have positive ids; chats, channels included, have negative ones.
func isSenderChat(id int64) bool {
	return id < 0
}

func memberConfig(chatID, userID string) (tgbotapi.ChatMemberConfig, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, err
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, fmt.Errorf("invalid user ID: %w", err)
	}
	return tgbotapi.ChatMemberConfig{ChatID: id, UserID: uid}, nil
}
