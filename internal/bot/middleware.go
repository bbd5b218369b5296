package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rg/arcguard/internal/messaging"
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string.
// A limit of zero or less allows everything.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.limit <= 0 || rl.window <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	var validRequests []time.Time
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			validRequests = append(validRequests, t)
		}
	}

	if len(validRequests) >= rl.limit {
		rl.requests[key] = validRequests
		return false
	}

	rl.requests[key] = append(validRequests, now)
	return true
}

// Cleanup drops keys with no request inside the window.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)

	for key, requests := range rl.requests {
		var validRequests []time.Time
		for _, t := range requests {
			if t.After(cutoff) {
				validRequests = append(validRequests, t)
			}
		}

		if len(validRequests) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = validRequests
		}
	}
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if rl == nil || rl.limit <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Logger logs slow or failed message handling.
func Logger(handler messaging.MessageHandler) messaging.MessageHandler {
	return func(msg *messaging.IncomingMessage) error {
		start := time.Now()
		err := handler(msg)
		duration := time.Since(start)

		if err != nil {
			slog.Error("Message handling failed", "chat_id", msg.ChatID, "message_id", msg.MessageID, "duration", duration, "error", err)
		} else {
			slog.Debug("Message handled", "chat_id", msg.ChatID, "message_id", msg.MessageID, "duration", duration)
		}

		return err
	}
}

// Recover turns a panic in one message's handling into an error so the
// update loop keeps running.
func Recover(handler messaging.MessageHandler) messaging.MessageHandler {
	return func(msg *messaging.IncomingMessage) (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic while handling message", "chat_id", msg.ChatID, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic handling message %s: %v", msg.MessageID, r)
			}
		}()
		return handler(msg)
	}
}

// Chain applies middlewares so the first one listed runs outermost.
func Chain(handler messaging.MessageHandler, middlewares ...func(messaging.MessageHandler) messaging.MessageHandler) messaging.MessageHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
