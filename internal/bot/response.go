package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rg/arcguard/internal/filters"
)

// maxListingLen keeps one listing page well inside Telegram's message limit.
const maxListingLen = 3500

// FilterListing is the paged trigger listing shown by the list command.
func FilterListing(registry *filters.Registry) []string {
	return formatFilterListing(registry.Triggers(), maxListingLen)
}

// formatFilterListing renders sorted triggers as one or more pages.
func formatFilterListing(triggers []string, maxLen int) []string {
	if len(triggers) == 0 {
		return []string{"No filters configured."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filters (%d):\n", len(triggers))
	for _, t := range triggers {
		b.WriteString("• ")
		b.WriteString(t)
		b.WriteString("\n")
	}

	return splitResponse(strings.TrimRight(b.String(), "\n"), maxLen)
}

type statusInfo struct {
	Uptime       time.Duration
	Rules        []string
	Filters      int
	BanPhrases   int
	MutePhrases  int
	DeletePhrase int
	Whitelist    int
	SpamWindows  int
	SpamRecords  int
	QueueDepth   int
}

func formatStatusResponse(s statusInfo) string {
	var b strings.Builder

	b.WriteString("🛡 Moderation status\n\n")
	fmt.Fprintf(&b, "Uptime: %s\n", formatDuration(s.Uptime))
	fmt.Fprintf(&b, "Rules: %d\n", len(s.Rules))
	fmt.Fprintf(&b, "Filters: %d\n", s.Filters)
	fmt.Fprintf(&b, "Phrases: ban %d, mute %d, delete %d, whitelist %d\n",
		s.BanPhrases, s.MutePhrases, s.DeletePhrase, s.Whitelist)
	fmt.Fprintf(&b, "Spam: %d tracked texts, %d flagged\n", s.SpamWindows, s.SpamRecords)
	fmt.Fprintf(&b, "Pending actions: %d", s.QueueDepth)

	return b.String()
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:runeCut(text, maxLen)] + "..."
}

// runeCut moves a byte offset n < len(s) back to the start of the rune it
// falls in, so a cut never splits a UTF-8 sequence.
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func splitResponse(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	lines := strings.Split(text, "\n")
	var currentChunk strings.Builder

	for _, line := range lines {
		if currentChunk.Len()+len(line)+1 > maxLen {
			if currentChunk.Len() > 0 {
				chunks = append(chunks, currentChunk.String())
				currentChunk.Reset()
			}

			if len(line) > maxLen {
				for len(line) > maxLen {
					cut := runeCut(line, maxLen)
					if cut == 0 {
						// maxLen is narrower than the first rune
						cut = maxLen
					}
					chunks = append(chunks, line[:cut])
					line = line[cut:]
				}
				chunks = append(chunks, line)
			} else {
				currentChunk.WriteString(line)
			}
		} else {
			if currentChunk.Len() > 0 {
				currentChunk.WriteString("\n")
			}
			currentChunk.WriteString(line)
		}
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return chunks
}

// formatDuration returns a compact duration such as "2h 5m".
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}

	if seconds > 5 {
		return fmt.Sprintf("%ds", seconds)
	}

	return "just now"
}

// humanizeDuration spells whole days out ("3 days") for user-facing notices.
func humanizeDuration(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		n := int(d / day)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	}
	return formatDuration(d)
}
