package announce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rg/arcguard/internal/messaging"
	"github.com/rg/arcguard/internal/metrics"
	"github.com/rg/arcguard/internal/storage"
)

type fakePublisher struct {
	mu      sync.Mutex
	sent    map[string][]string
	pinned  []string
	failFor map[string]bool
	seq     int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(map[string][]string), failFor: make(map[string]bool)}
}

func (f *fakePublisher) SendMessage(msg *messaging.OutgoingMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.ChatID] {
		return "", errors.New("chat not found")
	}
	if msg.ParseMode != messaging.ParseModeHTML {
		return "", errors.New("announcements must be HTML")
	}
	f.seq++
	f.sent[msg.ChatID] = append(f.sent[msg.ChatID], msg.Text)
	return fmt.Sprintf("%d", f.seq), nil
}

func (f *fakePublisher) PinMessage(chatID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, chatID+":"+messageID)
	return nil
}

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestScheduler_Rotation(t *testing.T) {
	pub := newFakePublisher()
	s, err := NewScheduler(pub, newStore(t), Config{
		Schedule: "0 */8 * * *",
		ChatIDs:  []string{"-1", "-2"},
		Messages: []string{"a", "b", "c"},
		Pin:      true,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		s.RunOnce()
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, pub.sent["-1"])
	assert.Equal(t, []string{"a", "b", "c", "a"}, pub.sent["-2"])
	assert.Len(t, pub.pinned, 8)
	assert.Equal(t, "-1:1", pub.pinned[0])
}

func TestScheduler_RotationSurvivesRestart(t *testing.T) {
	store := newStore(t)
	cfg := Config{Schedule: "@every 1h", ChatIDs: []string{"-1"}, Messages: []string{"a", "b"}}

	pub := newFakePublisher()
	s, err := NewScheduler(pub, store, cfg)
	require.NoError(t, err)
	s.RunOnce()

	pub = newFakePublisher()
	s, err = NewScheduler(pub, store, cfg)
	require.NoError(t, err)
	s.RunOnce()

	assert.Equal(t, []string{"b"}, pub.sent["-1"])
	assert.Empty(t, pub.pinned)
}

func TestScheduler_ShrunkMessageList(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveAnnouncement("-1", 5, "9", time.Now()))

	pub := newFakePublisher()
	s, err := NewScheduler(pub, store, Config{Schedule: "@hourly", ChatIDs: []string{"-1"}, Messages: []string{"a", "b"}})
	require.NoError(t, err)
	s.RunOnce()

	assert.Equal(t, []string{"b"}, pub.sent["-1"])
}

func TestScheduler_FailureIsolatedPerChat(t *testing.T) {
	pub := newFakePublisher()
	pub.failFor["-1"] = true
	store := newStore(t)

	s, err := NewScheduler(pub, store, Config{Schedule: "@hourly", ChatIDs: []string{"-1", "-2"}, Messages: []string{"a", "b"}})
	require.NoError(t, err)

	failedBefore := testutil.ToFloat64(metrics.AnnouncementsTotal.WithLabelValues("failed"))
	s.RunOnce()

	assert.Empty(t, pub.sent["-1"])
	assert.Equal(t, []string{"a"}, pub.sent["-2"])
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.AnnouncementsTotal.WithLabelValues("failed")))

	idx, err := store.NextAnnouncementIndex("-1")
	require.NoError(t, err)
	assert.Zero(t, idx, "a failed post does not advance the rotation")
}

func TestNewScheduler_Validation(t *testing.T) {
	store := newStore(t)

	_, err := NewScheduler(newFakePublisher(), store, Config{Schedule: "every tuesday", ChatIDs: []string{"-1"}})
	assert.Error(t, err)

	_, err = NewScheduler(newFakePublisher(), store, Config{Schedule: "@daily"})
	assert.Error(t, err)

	_, err = NewScheduler(newFakePublisher(), nil, Config{Schedule: "@daily", ChatIDs: []string{"-1"}})
	assert.Error(t, err)

	s, err := NewScheduler(newFakePublisher(), store, Config{Schedule: "@daily", ChatIDs: []string{"-1"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultMessages, s.cfg.Messages)
	assert.Len(t, DefaultMessages, 2)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(newFakePublisher(), newStore(t), Config{Schedule: "@every 1h", ChatIDs: []string{"-1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
