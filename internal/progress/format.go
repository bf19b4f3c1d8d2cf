package progress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cuongbtq/media-relay/internal/domain"
)

// Status texts shown between progress streams
const (
	TextQueued      = "⏳ **Added to Queue...**"
	TextStarting    = "🔎 **Fetching media info...**"
	TextProcessing  = "⚙️ **Processing...**"
	TextUploading   = "⬆️ **Uploading...**"
	TextDownloading = "⬇️ **Downloading...**"
	TextCanceled    = "🚫 **Operation cancelled.**"
)

const maxErrorRunes = 1000

// Format selects the second half of the progress template
type Format int

const (
	// FormatRate renders "percent | rate/s"
	FormatRate Format = iota
	// FormatTotal renders "percent of total"
	FormatTotal
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown escapes the characters legacy Telegram Markdown treats as entities
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// HumanSize formats a byte count, "0 B" for unknown or empty values
func HumanSize(b int64) string {
	if b <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(b))
}

// Percent returns done/total as a percentage clamped to [0, 100]; unknown totals yield 0
func Percent(done, total int64) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Render formats one progress sample with the fixed template
func Render(title string, format Format, ev Event) string {
	pct := Percent(ev.Done, ev.Total)
	switch format {
	case FormatTotal:
		return fmt.Sprintf("%s\n`%.1f%%` of `%s`", title, pct, HumanSize(ev.Total))
	default:
		return fmt.Sprintf("%s\n`%.1f%%` | `%s/s`", title, pct, HumanSize(int64(ev.Speed)))
	}
}

// FailureText is the terminal error message shown to the requester
func FailureText(err error) string {
	if errors.Is(err, domain.ErrJobCanceled) {
		return TextCanceled
	}

	msg := "unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	if r := []rune(msg); len(r) > maxErrorRunes {
		msg = string(r[:maxErrorRunes]) + "…"
	}
	return "❌ Error: " + EscapeMarkdown(msg)
}
