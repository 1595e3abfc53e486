// ABOUTME: Word-bounded phrase matching and room-precedence entry selection
// ABOUTME: Matcher reads a fresh snapshot of entries on every call and never errors

package responds

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// isDelimiter reports whether r may sit next to a matched phrase. This is a
// coarse stand-in for a word boundary that also works around non-ASCII letters.
func isDelimiter(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', ',', '.', '\'', '"', '<', '>', '{', '}', '[', ']':
		return true
	}
	return false
}

// ContainsPhrase reports whether phrase occurs in text, case-insensitively,
// with a delimiter or the edge of text on both sides.
func ContainsPhrase(text, phrase string) bool {
	if phrase == "" || text == "" {
		return false
	}
	text = strings.ToLower(text)
	phrase = strings.ToLower(phrase)

	for offset := 0; offset <= len(text)-len(phrase); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)

		before := start == 0
		if !before {
			r, _ := utf8.DecodeLastRuneInString(text[:start])
			before = isDelimiter(r)
		}
		after := end == len(text)
		if !after {
			r, _ := utf8.DecodeRuneInString(text[end:])
			after = isDelimiter(r)
		}
		if before && after {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

// EntrySource supplies the current entries. Registry satisfies it.
type EntrySource interface {
	List(ctx context.Context) ([]Entry, error)
}

// Matcher picks the entry that answers a message.
type Matcher struct {
	source EntrySource
	logger *slog.Logger
}

// NewMatcher creates a Matcher reading entries from source.
func NewMatcher(source EntrySource, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		source: source,
		logger: logger.With("component", "matcher"),
	}
}

// Match returns the entry whose trigger appears in text, as seen from room.
// An entry scoped to room beats a global one; within a tier the first in
// store order wins. Entries scoped to other rooms are never returned.
// A failure to read entries is logged and reported as no match.
func (m *Matcher) Match(ctx context.Context, text, room string) (Entry, bool) {
	if text == "" {
		return Entry{}, false
	}

	entries, err := m.source.List(ctx)
	if err != nil {
		m.logger.Error("reading responds", "error", err)
		return Entry{}, false
	}
	if len(entries) == 0 {
		return Entry{}, false
	}

	return selectEntry(entries, text, room)
}

func selectEntry(entries []Entry, text, room string) (Entry, bool) {
	var fallback Entry
	found := false
	for _, e := range entries {
		if !e.EligibleIn(room) || !ContainsPhrase(text, e.Trigger) {
			continue
		}
		if !e.Global() {
			return e, true
		}
		if !found {
			fallback, found = e, true
		}
	}
	return fallback, found
}
