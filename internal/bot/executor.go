package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rg/arcguard/internal/messaging"
	"github.com/rg/arcguard/internal/metrics"
	"github.com/rg/arcguard/internal/moderation"
)

const (
	DefaultExecutorWorkers   = 4
	DefaultExecutorQueueSize = 256
)

// Task is one decided action waiting to be carried out.
type Task struct {
	DecisionID string
	ChatID     string
	MessageID  string
	SenderID   string
	SenderName string
	SentAt     time.Time
	Action     moderation.Action
}

// Notices are optional texts posted after a ban or mute. {name} and
// {duration} are substituted.
type Notices struct {
	Ban  string
	Mute string
}

// Executor performs platform side effects off the message path. Failures are
// logged and counted, never retried, and never fed back to the pipeline.
type Executor struct {
	platform messaging.Platform
	notices  Notices
	queue    chan Task
	workers  int
}

func NewExecutor(platform messaging.Platform, notices Notices, workers, queueSize int) *Executor {
	if workers <= 0 {
		workers = DefaultExecutorWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultExecutorQueueSize
	}
	return &Executor{
		platform: platform,
		notices:  notices,
		queue:    make(chan Task, queueSize),
		workers:  workers,
	}
}

// Submit queues a task without blocking. It reports false when the queue is
// full and the task was dropped.
func (e *Executor) Submit(task Task) bool {
	select {
	case e.queue <- task:
		return true
	default:
		metrics.ActionsDropped.Inc()
		slog.Warn("Executor queue full, dropping action",
			"decision_id", task.DecisionID,
			"chat_id", task.ChatID,
			"action", task.Action.Kind.String())
		return false
	}
}

// Pending is the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Start runs the workers until ctx is done. Tasks already queued are
// finished before it returns.
func (e *Executor) Start(ctx context.Context) error {
	slog.Info("Starting action executor", "workers", e.workers, "queue_size", cap(e.queue))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	wg.Wait()

	slog.Info("Action executor stopped")
	return nil
}

func (e *Executor) work(ctx context.Context) {
	for {
		select {
		case task := <-e.queue:
			e.run(task)
		case <-ctx.Done():
			for {
				select {
				case task := <-e.queue:
					e.run(task)
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) run(task Task) {
	if err := e.Execute(task); err != nil {
		slog.Warn("Action failed",
			"decision_id", task.DecisionID,
			"chat_id", task.ChatID,
			"message_id", task.MessageID,
			"action", task.Action.Kind.String(),
			"error", err)
	}
}

// Execute carries out a task synchronously. Every step is attempted even if
// an earlier one fails; the joined error reports all failures.
func (e *Executor) Execute(task Task) error {
	a := task.Action
	var errs []error
	fail := func(err error) {
		metrics.ActionFailures.WithLabelValues(a.Kind.String()).Inc()
		errs = append(errs, err)
	}

	switch a.Kind {
	case moderation.ActionNone:
		return nil

	case moderation.ActionBan:
		for _, userID := range a.Targets {
			if err := e.platform.Ban(task.ChatID, userID); err != nil {
				fail(err)
			}
		}
		if err := e.notify(task, e.notices.Ban); err != nil {
			fail(err)
		}

	case moderation.ActionMute:
		until := task.SentAt.Add(a.Duration)
		for _, userID := range a.Targets {
			if err := e.platform.Mute(task.ChatID, userID, until); err != nil {
				fail(err)
			}
		}
		if err := e.notify(task, e.notices.Mute); err != nil {
			fail(err)
		}

	case moderation.ActionDelete:
		if err := e.platform.DeleteMessage(task.ChatID, task.MessageID); err != nil {
			fail(err)
		}

	case moderation.ActionReply:
		if _, err := e.platform.SendMessage(&messaging.OutgoingMessage{
			ChatID:           task.ChatID,
			Text:             a.Text,
			ReplyToMessageID: task.MessageID,
		}); err != nil {
			fail(err)
		}

	case moderation.ActionSendMedia:
		if _, err := e.platform.SendMedia(&messaging.OutgoingMedia{
			ChatID:  task.ChatID,
			Path:    a.MediaPath,
			Kind:    mediaKind(a),
			Caption: a.Text,
		}); err != nil {
			fail(err)
		}

	case moderation.ActionRelay:
		if err := e.platform.DeleteMessage(task.ChatID, task.MessageID); err != nil {
			fail(err)
		}
		if a.Text != "" {
			if _, err := e.platform.SendMessage(&messaging.OutgoingMessage{
				ChatID:    task.ChatID,
				Text:      a.Text,
				ParseMode: messaging.ParseModeHTML,
			}); err != nil {
				fail(err)
			}
		}

	default:
		return fmt.Errorf("unknown action kind %s", a.Kind)
	}

	return errors.Join(errs...)
}

// notify posts a ban or mute notice, but only when the action targets the
// message sender alone. A spam burst mute names nobody.
func (e *Executor) notify(task Task, template string) error {
	a := task.Action
	if template == "" || len(a.Targets) != 1 || a.Targets[0] != task.SenderID {
		return nil
	}

	name := task.SenderName
	if name == "" {
		name = "user"
	}
	text := strings.NewReplacer(
		"{name}", name,
		"{duration}", humanizeDuration(a.Duration),
	).Replace(template)

	if _, err := e.platform.SendMessage(&messaging.OutgoingMessage{ChatID: task.ChatID, Text: text}); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

func mediaKind(a moderation.Action) messaging.MediaKind {
	if a.Filter == nil {
		return messaging.MediaAnimation
	}
	return messaging.MediaKind(a.Filter.Kind)
}
