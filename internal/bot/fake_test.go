package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/rg/arcguard/internal/messaging"
)

type call struct {
	Op      string
	ChatID  string
	Target  string // user ID, message ID, or media path
	Text    string
	Until   time.Time
	ReplyTo string
}

type fakePlatform struct {
	mu         sync.Mutex
	calls      []call
	admins     map[string][]string
	adminErr   error
	adminCalls int
	failOps    map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		admins:  make(map[string][]string),
		failOps: make(map[string]error),
	}
}

func (f *fakePlatform) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.failOps[c.Op]
}

func (f *fakePlatform) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakePlatform) GetAdmins(chatID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminCalls++
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	return f.admins[chatID], nil
}

func (f *fakePlatform) Ban(chatID, userID string) error {
	return f.record(call{Op: "ban", ChatID: chatID, Target: userID})
}

func (f *fakePlatform) Mute(chatID, userID string, until time.Time) error {
	return f.record(call{Op: "mute", ChatID: chatID, Target: userID, Until: until})
}

func (f *fakePlatform) DeleteMessage(chatID, messageID string) error {
	return f.record(call{Op: "delete", ChatID: chatID, Target: messageID})
}

func (f *fakePlatform) SendMessage(msg *messaging.OutgoingMessage) (string, error) {
	err := f.record(call{Op: "send", ChatID: msg.ChatID, Text: msg.Text, ReplyTo: msg.ReplyToMessageID})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("m%d", len(f.Calls())), nil
}

func (f *fakePlatform) SendMedia(media *messaging.OutgoingMedia) (string, error) {
	err := f.record(call{Op: "media:" + string(media.Kind), ChatID: media.ChatID, Target: media.Path, Text: media.Caption})
	if err != nil {
		return "", err
	}
	return "media", nil
}

func (f *fakePlatform) Start(messaging.MessageHandler) error { return nil }

func (f *fakePlatform) Stop() {}
