// ABOUTME: Chat message handler that answers triggers and executes admin commands
// ABOUTME: A message that is a command is never also matched against the triggers

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-responder/internal/commands"
	"github.com/2389/coven-responder/internal/dedupe"
	"github.com/2389/coven-responder/internal/responds"
	"github.com/2389/coven-responder/internal/store"
)

// Replies sent for admin commands.
const (
	ReplyAdded          = "Respond added"
	ReplyUpdated        = "Respond updated"
	ReplyEmptyList      = "No respond has been set yet."
	ReplyInvalidTrigger = "A respond needs some text to respond to."
	ReplySaveFailed     = "Sorry, I could not save that respond."
	ReplyReadFailed     = "Sorry, I could not read the responds."
)

// Message is an inbound chat message.
type Message struct {
	ID         string // event ID, used for redelivery dedupe when set
	Room       string
	Sender     string // stable sender identifier, recorded in the audit log
	SenderName string // display name used for {sender}
	Text       string
}

// ReplyKind tells the transport what produced a reply.
type ReplyKind int

const (
	ReplyCommand ReplyKind = iota
	ReplyMatch
)

// Reply is the text to send back to the message's room.
type Reply struct {
	Kind    ReplyKind
	Text    string
	Trigger string // matched trigger, ReplyMatch only
}

// Options configures a Bot.
type Options struct {
	// Prefix marks a message as addressed to the bot, e.g. "!responder".
	// When empty every message is checked for commands.
	Prefix string

	DedupeTTL  time.Duration
	DedupeSize int
}

// Bot handles messages for one chat connection.
type Bot struct {
	registry *responds.Registry
	matcher  *responds.Matcher
	audit    store.AuditStore
	seen     *dedupe.Cache
	prefix   string
	logger   *slog.Logger
}

// New creates a Bot. audit may be nil to skip the audit trail.
func New(registry *responds.Registry, audit store.AuditStore, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Minute
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = 10000
	}

	return &Bot{
		registry: registry,
		matcher:  responds.NewMatcher(registry, logger),
		audit:    audit,
		seen:     dedupe.New(opts.DedupeTTL, opts.DedupeSize),
		prefix:   strings.TrimSpace(opts.Prefix),
		logger:   logger.With("component", "bot"),
	}
}

// Handle processes msg and returns the reply to send, if any.
func (b *Bot) Handle(ctx context.Context, msg Message) (Reply, bool) {
	if msg.ID != "" && b.seen.CheckAndMark(dedupe.Key(msg.Room, msg.ID)) {
		b.logger.Debug("dropping redelivered message", "room", msg.Room, "id", msg.ID)
		return Reply{}, false
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Reply{}, false
	}

	if body, ok := b.addressed(text); ok {
		if strings.EqualFold(body, "help") {
			return Reply{Kind: ReplyCommand, Text: commands.Help(b.prefix)}, true
		}
		if cmd, ok := commands.Parse(body); ok {
			return Reply{Kind: ReplyCommand, Text: b.execute(ctx, msg, cmd)}, true
		}
	}

	entry, ok := b.matcher.Match(ctx, msg.Text, msg.Room)
	if !ok {
		return Reply{}, false
	}

	sender := msg.SenderName
	if sender == "" {
		sender = msg.Sender
	}
	b.logger.Info("trigger matched", "room", msg.Room, "trigger", entry.Trigger, "scoped", !entry.Global())
	return Reply{
		Kind:    ReplyMatch,
		Text:    responds.Render(entry.Value, responds.MessageVars(sender, msg.Room)),
		Trigger: entry.Trigger,
	}, true
}

// addressed strips the command prefix from text. Without a prefix every
// message counts as addressed.
func (b *Bot) addressed(text string) (string, bool) {
	if b.prefix == "" {
		return text, true
	}
	if len(text) < len(b.prefix) || !strings.EqualFold(text[:len(b.prefix)], b.prefix) {
		return "", false
	}
	body := strings.TrimLeft(text[len(b.prefix):], " \t:,")
	return strings.TrimSpace(body), true
}

func (b *Bot) execute(ctx context.Context, msg Message, cmd commands.Command) string {
	switch cmd.Kind {
	case commands.KindUpsert:
		return b.upsert(ctx, msg, cmd)
	case commands.KindDelete:
		return b.remove(ctx, msg, cmd)
	case commands.KindList:
		return b.list(ctx, msg, cmd)
	default:
		return commands.Help(b.prefix)
	}
}

func (b *Bot) upsert(ctx context.Context, msg Message, cmd commands.Command) string {
	room := scopeRoom(msg, cmd)
	result, err := b.registry.Upsert(ctx, cmd.Trigger, cmd.Value, room)
	if errors.Is(err, responds.ErrInvalidTrigger) {
		return ReplyInvalidTrigger
	}
	if err != nil {
		b.logger.Error("failed to save respond", "room", msg.Room, "error", err)
		return ReplySaveFailed
	}

	action := store.AuditCreateRespond
	reply := ReplyAdded
	if result == responds.Updated {
		action = store.AuditUpdateRespond
		reply = ReplyUpdated
	}
	b.record(ctx, msg, action, cmd.Trigger, room, map[string]any{"value": cmd.Value})
	return reply
}

func (b *Bot) remove(ctx context.Context, msg Message, cmd commands.Command) string {
	trigger := responds.NormalizeTrigger(cmd.Trigger)
	if trigger == "" {
		return ReplyInvalidTrigger
	}

	room := scopeRoom(msg, cmd)
	removed, err := b.registry.Remove(ctx, trigger, room)
	if err != nil {
		b.logger.Error("failed to delete respond", "room", msg.Room, "error", err)
		return ReplySaveFailed
	}
	if !removed {
		if room != "" {
			return fmt.Sprintf("There is no respond to %s in this room.", trigger)
		}
		return fmt.Sprintf("There is no respond to %s.", trigger)
	}

	b.record(ctx, msg, store.AuditDeleteRespond, trigger, room, nil)
	return fmt.Sprintf("respond to %s deleted", trigger)
}

func (b *Bot) list(ctx context.Context, msg Message, cmd commands.Command) string {
	var entries []responds.Entry
	var err error
	if cmd.All {
		entries, err = b.registry.List(ctx)
	} else {
		entries, err = b.registry.ListRoom(ctx, msg.Room)
	}
	if err != nil {
		b.logger.Error("failed to list responds", "room", msg.Room, "error", err)
		return ReplyReadFailed
	}
	if len(entries) == 0 {
		return ReplyEmptyList
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, FormatEntry(e, msg.Room))
	}
	return strings.Join(lines, "\n")
}

// FormatEntry renders an entry as a list line, noting its scope relative to
// the room it is listed in.
func FormatEntry(e responds.Entry, room string) string {
	line := fmt.Sprintf("respond to %s with %s", e.Trigger, e.Value)
	switch {
	case e.Global():
		return line
	case e.Room == room:
		return line + " (this room)"
	default:
		return fmt.Sprintf("%s (in %s)", line, e.Room)
	}
}

func (b *Bot) record(ctx context.Context, msg Message, action store.AuditAction, trigger, room string, detail map[string]any) {
	if b.audit == nil {
		return
	}

	entry := &store.AuditEntry{
		Actor:   msg.Sender,
		Action:  action,
		Trigger: responds.NormalizeTrigger(trigger),
		Detail:  detail,
	}
	if room != "" {
		entry.Room = &room
	}
	if err := b.audit.AppendAuditLog(ctx, entry); err != nil {
		b.logger.Warn("failed to write audit entry", "action", action, "error", err)
	}
}

// scopeRoom returns the room a command applies to, or "" for every room.
func scopeRoom(msg Message, cmd commands.Command) string {
	if cmd.Here {
		return msg.Room
	}
	return ""
}
