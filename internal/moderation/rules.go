package moderation

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/rivo/uniseg"

	"github.com/rg/arcguard/internal/filters"
	"github.com/rg/arcguard/internal/phrases"
	"github.com/rg/arcguard/internal/spam"
	"github.com/rg/arcguard/internal/textnorm"
)

// Evaluation carries per-message state between rules.
type Evaluation struct {
	Now        time.Time
	Normalized string
	// Bypass is set for admins; moderation rules are skipped.
	Bypass bool
	// SpamExempt skips duplicate detection for this message.
	SpamExempt bool
}

// Rule inspects a message and either decides an action or passes. A rule
// that decides ends the evaluation.
type Rule interface {
	Name() string
	Evaluate(msg *Message, ev *Evaluation) (Action, bool)
}

// moderated wraps rules that never apply to admins.
type moderated struct {
	Rule
}

func (m moderated) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if ev.Bypass {
		return Action{}, false
	}
	return m.Rule.Evaluate(msg, ev)
}

type adminCommandRule struct {
	prefix string
}

func (r adminCommandRule) Name() string { return "admin_command" }

func (r adminCommandRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if r.prefix == "" || !msg.SenderIsAdmin {
		return Action{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, r.prefix) {
		return Action{}, false
	}
	rest := text[len(r.prefix):]
	// "/say" must not swallow "/saying"
	if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "@") {
		return Action{}, false
	}
	if strings.HasPrefix(rest, "@") {
		// "/say@botname payload"
		if i := strings.IndexAny(rest, " \n"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	return Relay(strings.TrimSpace(rest)), true
}

type adminBypassRule struct{}

func (adminBypassRule) Name() string { return "admin_bypass" }

func (adminBypassRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if msg.SenderIsAdmin {
		ev.Bypass = true
	}
	return Action{}, false
}

type minLengthRule struct {
	min int
}

func (r minLengthRule) Name() string { return "min_length" }

func (r minLengthRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if uniseg.GraphemeClusterCount(strings.TrimSpace(msg.Text)) < r.min {
		return Delete(), true
	}
	return Action{}, false
}

type suspiciousIdentityRule struct {
	keywords []string
}

func (r suspiciousIdentityRule) Name() string { return "suspicious_identity" }

func (r suspiciousIdentityRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	identity := msg.Identity()
	if identity == "" {
		return Action{}, false
	}
	lower := strings.ToLower(identity)
	folded := textnorm.Fold(identity)
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) || strings.Contains(folded, kw) {
			a := Ban(msg.SenderID)
			a.Match = kw
			return a, true
		}
	}
	return Action{}, false
}

var explicitURL = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s<>"'()]+`)

type linkRule struct {
	allowed []string
}

func (r linkRule) Name() string { return "foreign_link" }

func (r linkRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	links := append(slices.Clone(msg.Links), explicitURL.FindAllString(msg.Text, -1)...)
	for _, link := range links {
		host := linkHost(link)
		if host == "" || r.isAllowed(host) {
			continue
		}
		a := Delete()
		a.Match = host
		return a, true
	}
	return Action{}, false
}

func (r linkRule) isAllowed(host string) bool {
	for _, d := range r.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// linkHost returns the lower-case host of a link, or "" for links without
// one (tg://, mailto:).
func linkHost(link string) string {
	link = strings.TrimRight(strings.TrimSpace(link), ".,;:!?")
	if link == "" {
		return ""
	}
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "tg:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	if !strings.Contains(link, "://") {
		link = "http://" + link
	}
	normalized, err := purell.NormalizeURLString(link, purell.FlagsSafe|purell.FlagRemoveWWW)
	if err != nil {
		normalized = link
	}
	u, err := url.Parse(normalized)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// patternRule deletes messages matching a regular expression.
type patternRule struct {
	name    string
	pattern *regexp.Regexp
}

func (r patternRule) Name() string { return r.name }

func (r patternRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if m := r.pattern.FindString(msg.Text); m != "" {
		a := Delete()
		a.Match = strings.TrimSpace(m)
		return a, true
	}
	return Action{}, false
}

// "10x", "x100", "5 x" and the like, used by giveaway scams
var multiplierPattern = regexp.MustCompile(`(?i)(?:^|[^\pL\pN_])(?:\d+\s?[x×]|[x×]\s?\d+)(?:$|[^\pL\pN_])`)

func giveTokenPattern(tokens []string) (*regexp.Regexp, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(t)))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	re, err := regexp.Compile(`(?i)\bgive\s+(?:away\s+)?\$?\d[\d,.]*\s*[km]?\s*\$?(?:` + strings.Join(quoted, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid token names: %w", err)
	}
	return re, nil
}

type forwardedRule struct{}

func (forwardedRule) Name() string { return "forwarded" }

func (forwardedRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if msg.Forwarded {
		return Delete(), true
	}
	return Action{}, false
}

type filterExemptRule struct {
	registry *filters.Registry
}

func (filterExemptRule) Name() string { return "filter_exempt" }

func (r filterExemptRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if r.registry.Match(ev.Normalized) != nil {
		ev.SpamExempt = true
	}
	return Action{}, false
}

type whitelistRule struct {
	whitelist *phrases.Set
}

func (whitelistRule) Name() string { return "whitelist" }

func (r whitelistRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if !ev.SpamExempt && r.whitelist.Contains(ev.Normalized) {
		ev.SpamExempt = true
	}
	return Action{}, false
}

// RuleDuplicateSpam names the rule that mutes repeated texts.
const RuleDuplicateSpam = "duplicate_spam"

type spamRule struct {
	detector     *spam.Detector
	muteDuration time.Duration
}

func (spamRule) Name() string { return RuleDuplicateSpam }

func (r spamRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	if ev.SpamExempt || ev.Normalized == "" {
		return Action{}, false
	}

	senders := r.detector.RecordAndCheck(ev.Normalized, msg.SenderID, ev.Now)
	if r.detector.IsRecentlyFlagged(ev.Normalized, ev.Now) && !slices.Contains(senders, msg.SenderID) {
		senders = append(senders, msg.SenderID)
	}
	if len(senders) == 0 {
		return Action{}, false
	}
	return Mute(r.muteDuration, senders...), true
}

type phraseRule struct {
	set          *phrases.Set
	kind         ActionKind
	muteDuration time.Duration
}

func (r phraseRule) Name() string { return r.set.Name() + "_phrase" }

func (r phraseRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	phrase, ok := r.set.Match(ev.Normalized)
	if !ok {
		return Action{}, false
	}

	var a Action
	switch r.kind {
	case ActionBan:
		a = Ban(msg.SenderID)
	case ActionMute:
		a = Mute(r.muteDuration, msg.SenderID)
	default:
		a = Delete()
	}
	a.Match = phrase
	return a, true
}

type filterDispatchRule struct {
	registry *filters.Registry
}

func (filterDispatchRule) Name() string { return "filter" }

func (r filterDispatchRule) Evaluate(msg *Message, ev *Evaluation) (Action, bool) {
	resp, ok := r.registry.Dispatch(ev.Normalized)
	if !ok {
		return Action{}, false
	}

	var a Action
	if resp.MediaPath != "" {
		a = SendMedia(resp.Filter, resp.MediaPath)
	} else {
		a = Reply(resp.Text)
	}
	a.Match = resp.Filter.Trigger
	return a, true
}
