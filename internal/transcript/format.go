package transcript

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// DefaultPageSize is the number of lines per page used when none is given.
const DefaultPageSize = 25

// FormatTime renders whole seconds as H:MM:SS. Hours are not padded.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// Utterances flattens the transcript into time order. Words that start in
// the same second keep their document order.
func Utterances(raw *Raw) []Utterance {
	if raw == nil {
		return nil
	}

	var out []Utterance
	for _, p := range raw.Participants {
		for _, w := range p.Words {
			out = append(out, Utterance{
				Speaker: p.Participant.Name,
				Text:    w.Text,
				Seconds: wholeSeconds(w.StartTimestamp.Relative),
				IsHost:  p.Participant.IsHost,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b Utterance) int {
		return a.Seconds - b.Seconds
	})
	return out
}

// Format splits the transcript into pages of pageSize lines. A pageSize of
// zero or less uses DefaultPageSize.
func Format(raw *Raw, pageSize int) []Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var pages []Page
	var current []string
	for i, u := range Utterances(raw) {
		current = append(current, formatLine(u, i+1))
		if len(current) >= pageSize {
			pages = append(pages, Page{Number: len(pages) + 1, Lines: current})
			current = nil
		}
	}
	if len(current) > 0 {
		pages = append(pages, Page{Number: len(pages) + 1, Lines: current})
	}
	return pages
}

// Render joins pages into the transcript text.
func Render(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "    Page %d\n", p.Number)
		for _, line := range p.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatLine(u Utterance, lineNo int) string {
	prefix := "A"
	if u.IsHost {
		prefix = "Q"
	}
	return fmt.Sprintf("%s %2d %s:   %s", FormatTime(u.Seconds), lineNo, prefix, u.Text)
}

func wholeSeconds(relative float64) int {
	if math.IsNaN(relative) || relative < 0 {
		return 0
	}
	return int(math.Floor(relative))
}
