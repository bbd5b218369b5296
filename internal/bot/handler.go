package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rg/arcguard/internal/filters"
	"github.com/rg/arcguard/internal/messaging"
	"github.com/rg/arcguard/internal/metrics"
	"github.com/rg/arcguard/internal/moderation"
	"github.com/rg/arcguard/internal/spam"
)

const (
	DefaultListCommand   = "/filters"
	DefaultStatusCommand = "/modstatus"
)

// Options are the handler settings that are not collaborators.
type Options struct {
	// AllowedChatIDs limits the bot to these chats. Empty means every group.
	AllowedChatIDs []string
	ListCommand    string
	StatusCommand  string
	// BotUsername lets "/cmd@otherbot" pass through unanswered.
	BotUsername string
}

type Handler struct {
	platform       messaging.Platform
	pipeline       *moderation.Pipeline
	registry       *filters.Registry
	lists          moderation.Lists
	detector       *spam.Detector
	executor       *Executor
	admins         *AdminCache
	replyLimiter   *RateLimiter
	allowedChatIDs map[string]bool
	listCommand    string
	statusCommand  string
	botUsername    string
	startedAt      time.Time
	now            func() time.Time
}

func NewHandler(
	platform messaging.Platform,
	pipeline *moderation.Pipeline,
	registry *filters.Registry,
	lists moderation.Lists,
	detector *spam.Detector,
	executor *Executor,
	admins *AdminCache,
	replyLimiter *RateLimiter,
	opts Options,
) *Handler {
	allowedMap := make(map[string]bool)
	for _, chatID := range opts.AllowedChatIDs {
		allowedMap[chatID] = true
	}
	if opts.ListCommand == "" {
		opts.ListCommand = DefaultListCommand
	}
	if opts.StatusCommand == "" {
		opts.StatusCommand = DefaultStatusCommand
	}

	return &Handler{
		platform:       platform,
		pipeline:       pipeline,
		registry:       registry,
		lists:          lists,
		detector:       detector,
		executor:       executor,
		admins:         admins,
		replyLimiter:   replyLimiter,
		allowedChatIDs: allowedMap,
		listCommand:    opts.ListCommand,
		statusCommand:  opts.StatusCommand,
		botUsername:    strings.TrimPrefix(opts.BotUsername, "@"),
		startedAt:      time.Now(),
		now:            time.Now,
	}
}

func (h *Handler) HandleMessage(msg *messaging.IncomingMessage) error {
	if msg.ChatType != messaging.ChatTypeGroup {
		slog.Debug("Ignoring non-group message", "chat_id", msg.ChatID, "chat_type", msg.ChatType.String())
		return nil
	}

	if len(h.allowedChatIDs) > 0 && !h.allowedChatIDs[msg.ChatID] {
		slog.Warn("Ignoring message from chat outside allowed list", "chat_id", msg.ChatID)
		return nil
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	senderID := msg.SenderID()
	if senderID == "" {
		return nil
	}

	isAdmin, err := h.isAdmin(msg)
	if err != nil {
		slog.Warn("Skipping message, admin lookup failed",
			"chat_id", msg.ChatID,
			"message_id", msg.MessageID,
			"error", err)
		return nil
	}

	if isAdmin {
		if handled, err := h.handleCommand(msg); handled {
			return err
		}
	}

	sentAt := msg.Timestamp
	if sentAt.IsZero() {
		sentAt = h.now()
	}

	m := &moderation.Message{
		ID:             msg.MessageID,
		ChatID:         msg.ChatID,
		SenderID:       senderID,
		SenderName:     msg.SenderName(),
		SenderUsername: msg.SenderUsername(),
		Text:           msg.Text,
		Links:          msg.Links,
		SentAt:         sentAt,
		Forwarded:      msg.Forwarded,
		SenderIsAdmin:  isAdmin,
	}

	action := h.pipeline.Evaluate(m)
	decisionID := uuid.NewString()
	metrics.MessagesTotal.WithLabelValues(action.Kind.String()).Inc()

	if action.IsNone() {
		slog.Debug("No action",
			"decision_id", decisionID,
			"chat_id", msg.ChatID,
			"user_id", senderID,
			"message_id", msg.MessageID)
		return nil
	}

	slog.Info("Moderation decision",
		"decision_id", decisionID,
		"chat_id", msg.ChatID,
		"user_id", senderID,
		"message_id", msg.MessageID,
		"rule", action.Rule,
		"action", action.Kind.String(),
		"targets", action.Targets,
		"match", action.Match,
		"text", truncateText(msg.Text, 100))

	if action.Rule == moderation.RuleDuplicateSpam {
		metrics.SpamFlagged.Inc()
	}

	if isFilterResponse(action) && !h.replyLimiter.Allow(msg.ChatID+"|"+action.Match) {
		slog.Debug("Filter reply throttled", "decision_id", decisionID, "chat_id", msg.ChatID, "trigger", action.Match)
		return nil
	}

	h.executor.Submit(Task{
		DecisionID: decisionID,
		ChatID:     msg.ChatID,
		MessageID:  msg.MessageID,
		SenderID:   senderID,
		SenderName: senderName(msg),
		SentAt:     sentAt,
		Action:     action,
	})
	return nil
}

func (h *Handler) isAdmin(msg *messaging.IncomingMessage) (bool, error) {
	if msg.IsAnonymousAdmin() || msg.AutomaticForward {
		return true, nil
	}
	// a channel is never a member of the group, let alone an admin
	if msg.IsChannelSender() || msg.From.ID == "" {
		return false, nil
	}
	return h.admins.IsAdmin(msg.ChatID, msg.From.ID)
}

// handleCommand runs admin-only read commands. It reports whether the
// message was a command.
func (h *Handler) handleCommand(msg *messaging.IncomingMessage) (bool, error) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}

	cmd := strings.Fields(text)[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		addressee := cmd[i+1:]
		if h.botUsername != "" && !strings.EqualFold(addressee, h.botUsername) {
			return false, nil
		}
		cmd = cmd[:i]
	}

	switch cmd {
	case h.listCommand:
		return true, h.handleListCommand(msg.ChatID)
	case h.statusCommand:
		return true, h.handleStatusCommand(msg.ChatID)
	default:
		return false, nil
	}
}

func (h *Handler) handleListCommand(chatID string) error {
	slog.Info("Processing filter list command", "chat_id", chatID)
	return h.sendPages(chatID, FilterListing(h.registry))
}

func (h *Handler) handleStatusCommand(chatID string) error {
	slog.Info("Processing status command", "chat_id", chatID)

	stats := h.detector.Stats()
	status := statusInfo{
		Uptime:       h.now().Sub(h.startedAt),
		Rules:        h.pipeline.RuleNames(),
		Filters:      h.registry.Len(),
		BanPhrases:   h.lists.Ban.Len(),
		MutePhrases:  h.lists.Mute.Len(),
		DeletePhrase: h.lists.Delete.Len(),
		Whitelist:    h.lists.Whitelist.Len(),
		SpamWindows:  stats.Windows,
		SpamRecords:  stats.Records,
		QueueDepth:   h.executor.Pending(),
	}
	return h.sendPages(chatID, []string{formatStatusResponse(status)})
}

func (h *Handler) sendPages(chatID string, pages []string) error {
	for i, page := range pages {
		if _, err := h.platform.SendMessage(&messaging.OutgoingMessage{ChatID: chatID, Text: page}); err != nil {
			return fmt.Errorf("failed to send page %d: %w", i+1, err)
		}
	}
	return nil
}

func isFilterResponse(a moderation.Action) bool {
	return a.Kind == moderation.ActionReply || a.Kind == moderation.ActionSendMedia
}

func senderName(msg *messaging.IncomingMessage) string {
	if name := msg.SenderName(); name != "" {
		return name
	}
	if username := msg.SenderUsername(); username != "" {
		return "@" + username
	}
	return ""
}
