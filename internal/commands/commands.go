// ABOUTME: Parses responder admin commands typed in chat
// ABOUTME: Recognises respond/delete/list forms and their room-scoped "here" variants

package commands

import (
	"regexp"
	"strings"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindNone Kind = iota
	KindUpsert
	KindDelete
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindUpsert:
		return "upsert"
	case KindDelete:
		return "delete"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Command is a parsed admin command.
type Command struct {
	Kind    Kind
	Trigger string // raw trigger text, not yet normalized
	Value   string // reply template, KindUpsert only
	Here    bool   // scope to the room the command was sent in
	All     bool   // KindList: include entries of every room
}

// The trigger group is greedy: "respond to a with b with c" binds "a with b" to "c".
var (
	upsertRe = regexp.MustCompile(`(?i)^respond\s+(here\s+)?to\s+(.+)\s+with\s+(.+)$`)
	deleteRe = regexp.MustCompile(`(?i)^delete\s+respond\s+(here\s+)?to\s+(.+)$`)
	listRe   = regexp.MustCompile(`(?i)^list\s+(all\s+)?responds$`)
)

// Parse recognises a command in text. Text that is not a command returns
// ok=false and should be handed to the matcher instead.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, false
	}

	// delete must be tried before upsert: "delete respond to x with y" is a delete.
	if m := deleteRe.FindStringSubmatch(text); m != nil {
		return Command{
			Kind:    KindDelete,
			Here:    m[1] != "",
			Trigger: strings.TrimSpace(m[2]),
		}, true
	}

	if m := upsertRe.FindStringSubmatch(text); m != nil {
		return Command{
			Kind:    KindUpsert,
			Here:    m[1] != "",
			Trigger: strings.TrimSpace(m[2]),
			Value:   strings.TrimSpace(m[3]),
		}, true
	}

	if m := listRe.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindList, All: m[1] != ""}, true
	}

	return Command{}, false
}

// Help lists the command forms for replies to "help".
func Help(prefix string) string {
	lines := []string{
		"respond to <text> with <reply> - reply to <text> in every room",
		"respond here to <text> with <reply> - reply to <text> in this room only",
		"delete respond to <text> - forget <text> in every room",
		"delete respond here to <text> - forget <text> in this room",
		"list responds - show responds active in this room",
		"list all responds - show every respond",
	}
	if prefix != "" {
		for i, l := range lines {
			lines[i] = prefix + " " + l
		}
	}
	return strings.Join(lines, "\n")
}
