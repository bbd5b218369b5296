// Package announce posts rotating notices to chats on a cron schedule. It
// shares nothing with moderation beyond the platform client.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rg/arcguard/internal/messaging"
	"github.com/rg/arcguard/internal/metrics"
)

// StateStore persists each chat's rotation position across restarts.
type StateStore interface {
	NextAnnouncementIndex(chatID string) (int, error)
	SaveAnnouncement(chatID string, nextIndex int, messageID string, postedAt time.Time) error
}

type Config struct {
	Schedule string
	ChatIDs  []string
	Messages []string
	Pin      bool
}

type Scheduler struct {
	publisher messaging.Publisher
	store     StateStore
	cfg       Config
	now       func() time.Time

	// runs never overlap
	mu sync.Mutex
}

func NewScheduler(publisher messaging.Publisher, store StateStore, cfg Config) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid announcement schedule %q: %w", cfg.Schedule, err)
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("announcements need at least one chat")
	}
	if store == nil {
		return nil, fmt.Errorf("announcement state store is required")
	}
	if len(cfg.Messages) == 0 {
		cfg.Messages = DefaultMessages
	}

	return &Scheduler{
		publisher: publisher,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Start runs the schedule until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule announcements: %w", err)
	}

	slog.Info("Starting announcement scheduler",
		"schedule", s.cfg.Schedule,
		"chats", len(s.cfg.ChatIDs),
		"messages", len(s.cfg.Messages),
		"pin", s.cfg.Pin)
	c.Start()

	<-ctx.Done()

	// wait for a run in progress
	<-c.Stop().Done()
	slog.Info("Announcement scheduler stopped")
	return nil
}

// RunOnce posts the next notice to every chat. A failure in one chat does
// not stop the others.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	for _, chatID := range s.cfg.ChatIDs {
		if err := s.postNext(chatID); err != nil {
			metrics.AnnouncementsTotal.WithLabelValues("failed").Inc()
			slog.Warn("Failed to post announcement", "run_id", runID, "chat_id", chatID, "error", err)
			continue
		}
		metrics.AnnouncementsTotal.WithLabelValues("sent").Inc()
	}
}

func (s *Scheduler) postNext(chatID string) error {
	idx, err := s.store.NextAnnouncementIndex(chatID)
	if err != nil {
		return err
	}
	// the message list may have shrunk since the index was saved
	idx %= len(s.cfg.Messages)
	if idx < 0 {
		idx = 0
	}

	messageID, err := s.publisher.SendMessage(&messaging.OutgoingMessage{
		ChatID:    chatID,
		Text:      s.cfg.Messages[idx],
		ParseMode: messaging.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send announcement %d: %w", idx, err)
	}

	var errs []error
	if s.cfg.Pin {
		if err := s.publisher.PinMessage(chatID, messageID); err != nil {
			errs = append(errs, err)
		}
	}

	next := (idx + 1) % len(s.cfg.Messages)
	if err := s.store.SaveAnnouncement(chatID, next, messageID, s.now()); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Posted announcement", "chat_id", chatID, "index", idx, "message_id", messageID)
	return errors.Join(errs...)
}
