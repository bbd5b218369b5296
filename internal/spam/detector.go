// Package spam detects the same text being posted repeatedly, usually by
// several accounts in a short burst.
//
// Every message appends (sender, time) to a sliding window keyed by its
// normalized text. When a window reaches the threshold the text is flagged;
// while the flag is fresh, any further copy of the text counts as spam even
// though its window has long since emptied.
package spam

import (
	"sync"
	"time"

	"github.com/rg/arcguard/internal/textnorm"
)

// Reference policy.
const (
	DefaultThreshold      = 3
	DefaultWindow         = 15 * time.Second
	DefaultRecordDuration = 5 * time.Minute
	DefaultSweepInterval  = 60 * time.Second
)

type Config struct {
	Threshold      int
	Window         time.Duration
	RecordDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		Window:         DefaultWindow,
		RecordDuration: DefaultRecordDuration,
	}
}

type submission struct {
	senderID string
	at       time.Time
}

// Detector is safe for concurrent use. A single mutex covers the windows and
// the flagged records, so a sweep never interleaves with an update.
type Detector struct {
	cfg Config

	mu      sync.Mutex
	windows map[string][]submission
	records map[string]time.Time
}

func NewDetector(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.RecordDuration <= 0 {
		cfg.RecordDuration = DefaultRecordDuration
	}
	return &Detector{
		cfg:     cfg,
		windows: make(map[string][]submission),
		records: make(map[string]time.Time),
	}
}

func (d *Detector) Config() Config {
	return d.cfg
}

// RecordAndCheck adds a submission of text by senderID and returns the
// distinct senders in the window if it has reached the threshold. The text is
// flagged at now when that happens.
func (d *Detector) RecordAndCheck(text, senderID string, now time.Time) []string {
	key := textnorm.Normalize(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.prune(d.windows[key], now)
	window = append(window, submission{senderID: senderID, at: now})
	if len(window) > d.cfg.Threshold {
		window = window[len(window)-d.cfg.Threshold:]
	}
	d.windows[key] = window

	if len(window) < d.cfg.Threshold {
		return nil
	}

	d.records[key] = now
	return distinctSenders(window)
}

// IsRecentlyFlagged reports whether text was flagged no longer than the
// record duration before now. Stale records are dropped on read.
func (d *Detector) IsRecentlyFlagged(text string, now time.Time) bool {
	key := textnorm.Normalize(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	flaggedAt, ok := d.records[key]
	if !ok {
		return false
	}
	if now.Sub(flaggedAt) > d.cfg.RecordDuration {
		delete(d.records, key)
		return false
	}
	return true
}

// Sweep removes expired records and windows whose submissions have all aged
// out. It returns the number of records removed.
func (d *Detector) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, flaggedAt := range d.records {
		if now.Sub(flaggedAt) > d.cfg.RecordDuration {
			delete(d.records, key)
			removed++
		}
	}

	for key, window := range d.windows {
		if len(d.prune(window, now)) == 0 {
			delete(d.windows, key)
		}
	}

	return removed
}

type Stats struct {
	Windows int
	Records int
}

func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Windows: len(d.windows), Records: len(d.records)}
}

// prune drops submissions older than the window. Entries are in arrival
// order, so everything before the first fresh entry is stale.
func (d *Detector) prune(window []submission, now time.Time) []submission {
	i := 0
	for i < len(window) && now.Sub(window[i].at) > d.cfg.Window {
		i++
	}
	if i == 0 {
		return window
	}
	return append([]submission(nil), window[i:]...)
}

func distinctSenders(window []submission) []string {
	seen := make(map[string]bool, len(window))
	out := make([]string, 0, len(window))
	for _, s := range window {
		if !seen[s.senderID] {
			seen[s.senderID] = true
			out = append(out, s.senderID)
		}
	}
	return out
}
