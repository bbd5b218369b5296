package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rg/arcguard/internal/filters"
)

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionBan
	ActionMute
	ActionDelete
	ActionReply
	ActionSendMedia
	// ActionRelay deletes an admin command message and posts its payload.
	ActionRelay
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionBan:
		return "ban"
	case ActionMute:
		return "mute"
	case ActionDelete:
		return "delete"
	case ActionReply:
		return "reply"
	case ActionSendMedia:
		return "send_media"
	case ActionRelay:
		return "relay"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is the single decision taken for a message.
type Action struct {
	Kind ActionKind
	// Rule names the rule that decided.
	Rule string
	// Targets are the users to ban or mute. A spam mute can hit several.
	Targets  []string
	Duration time.Duration
	Text     string
	// Filter and MediaPath are set for ActionSendMedia.
	Filter    *filters.Filter
	MediaPath string
	// Match is the phrase, pattern or trigger that fired, for logging.
	Match string
}

func (a Action) IsNone() bool {
	return a.Kind == ActionNone
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	if len(a.Targets) > 0 {
		fmt.Fprintf(&b, " targets=%s", strings.Join(a.Targets, ","))
	}
	if a.Duration > 0 {
		fmt.Fprintf(&b, " duration=%s", a.Duration)
	}
	if a.MediaPath != "" {
		fmt.Fprintf(&b, " media=%s", a.MediaPath)
	}
	if a.Text != "" {
		fmt.Fprintf(&b, " text=%q", a.Text)
	}
	if a.Rule != "" {
		fmt.Fprintf(&b, " rule=%s", a.Rule)
	}
	return b.String()
}

func Ban(userID string) Action {
	return Action{Kind: ActionBan, Targets: []string{userID}}
}

func Mute(d time.Duration, userIDs ...string) Action {
	return Action{Kind: ActionMute, Targets: userIDs, Duration: d}
}

func Delete() Action {
	return Action{Kind: ActionDelete}
}

func Reply(text string) Action {
	return Action{Kind: ActionReply, Text: text}
}

func SendMedia(f *filters.Filter, path string) Action {
	return Action{Kind: ActionSendMedia, Filter: f, MediaPath: path, Text: f.ResponseText}
}

func Relay(text string) Action {
	return Action{Kind: ActionRelay, Text: text}
}
