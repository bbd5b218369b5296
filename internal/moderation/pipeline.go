// Package moderation decides a single action for each chat message.
//
// The pipeline is a fixed, ordered list of rules. Evaluation stops at the
// first rule that decides. Admins skip every moderation rule but still get
// filter responses:
//
//	admin_command        admin text starting with the command prefix is relayed
//	admin_bypass         admins jump straight to filter dispatch
//	min_length           fewer than MinLength visible characters -> delete
//	suspicious_identity  name or handle contains an impersonation keyword -> ban
//	foreign_link         link to a domain outside PlatformDomains -> delete
//	multiplier           "10x" style giveaway wording -> delete
//	give_token           "give 100 eth" -> delete
//	forwarded            forwarded message -> delete
//	filter_exempt        filter triggers are exempt from duplicate detection
//	whitelist            whitelisted texts are exempt from duplicate detection
//	duplicate_spam       repeated text -> mute every sender in the burst
//	ban/mute/delete      phrase lists, in that order
//	filter               canned response, admins included
package moderation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rg/arcguard/internal/filters"
	"github.com/rg/arcguard/internal/phrases"
	"github.com/rg/arcguard/internal/spam"
	"github.com/rg/arcguard/internal/textnorm"
)

const (
	DefaultMinLength    = 2
	DefaultMuteDuration = 72 * time.Hour
)

// DefaultPlatformDomains are the Telegram-owned domains links may point to.
var DefaultPlatformDomains = []string{"t.me", "telegram.me", "telegram.org", "telegram.dog"}

type Config struct {
	MinLength          int
	MuteDuration       time.Duration
	AdminCommandPrefix string
	SuspiciousKeywords []string
	PlatformDomains    []string
	TokenNames         []string
}

// Lists are the phrase sets loaded at startup.
type Lists struct {
	Ban       *phrases.Set
	Mute      *phrases.Set
	Delete    *phrases.Set
	Whitelist *phrases.Set
}

type Pipeline struct {
	rules []Rule
	now   func() time.Time
}

func NewPipeline(cfg Config, lists Lists, registry *filters.Registry, detector *spam.Detector) (*Pipeline, error) {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MuteDuration <= 0 {
		cfg.MuteDuration = DefaultMuteDuration
	}
	if len(cfg.PlatformDomains) == 0 {
		cfg.PlatformDomains = DefaultPlatformDomains
	}
	if detector == nil {
		return nil, fmt.Errorf("spam detector is required")
	}
	lists = lists.withDefaults()

	giveToken, err := giveTokenPattern(cfg.TokenNames)
	if err != nil {
		return nil, err
	}

	rules := []Rule{
		adminCommandRule{prefix: strings.TrimSpace(cfg.AdminCommandPrefix)},
		adminBypassRule{},
		moderated{minLengthRule{min: cfg.MinLength}},
		moderated{suspiciousIdentityRule{keywords: lowerAll(cfg.SuspiciousKeywords)}},
		moderated{linkRule{allowed: lowerAll(cfg.PlatformDomains)}},
		moderated{patternRule{name: "multiplier", pattern: multiplierPattern}},
	}
	if giveToken != nil {
		rules = append(rules, moderated{patternRule{name: "give_token", pattern: giveToken}})
	}
	rules = append(rules,
		moderated{forwardedRule{}},
		moderated{filterExemptRule{registry: registry}},
		moderated{whitelistRule{whitelist: lists.Whitelist}},
		moderated{spamRule{detector: detector, muteDuration: cfg.MuteDuration}},
		moderated{phraseRule{set: lists.Ban, kind: ActionBan}},
		moderated{phraseRule{set: lists.Mute, kind: ActionMute, muteDuration: cfg.MuteDuration}},
		moderated{phraseRule{set: lists.Delete, kind: ActionDelete}},
		filterDispatchRule{registry: registry},
	)

	return &Pipeline{
		rules: rules,
		now:   time.Now,
	}, nil
}

// SetClock replaces the wall clock used for spam windows.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Evaluate runs the rules in order and returns the first decision, or an
// ActionNone action when no rule decides.
func (p *Pipeline) Evaluate(msg *Message) Action {
	ev := &Evaluation{
		Now:        p.now(),
		Normalized: textnorm.Normalize(msg.Text),
	}

	for _, r := range p.rules {
		if a, ok := r.Evaluate(msg, ev); ok {
			a.Rule = r.Name()
			return a
		}
	}
	return Action{Kind: ActionNone}
}

// RuleNames lists the rules in evaluation order.
func (p *Pipeline) RuleNames() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name()
	}
	return names
}

func (l Lists) withDefaults() Lists {
	empty := func(name string, s *phrases.Set) *phrases.Set {
		if s != nil {
			return s
		}
		set, _ := phrases.New(name, nil)
		return set
	}
	return Lists{
		Ban:       empty("ban", l.Ban),
		Mute:      empty("mute", l.Mute),
		Delete:    empty("delete", l.Delete),
		Whitelist: empty("whitelist", l.Whitelist),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
