// ABOUTME: Matrix bridge core for coven-responder
// ABOUTME: Logs in, syncs room messages into the bot, and posts its replies as notices

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-responder/internal/bot"
	"github.com/2389/coven-responder/internal/config"
)

// typingTimeout is the duration the typing indicator shows.
const typingTimeout = 30 * time.Second

// networkTimeout is the timeout for Matrix API calls.
const networkTimeout = 10 * time.Second

// Bridge connects Matrix rooms to the responder bot.
type Bridge struct {
	config *config.Config
	matrix *mautrix.Client
	bot    *bot.Bot
	logger *slog.Logger

	// startedAt filters out the backlog delivered by the first sync
	startedAt time.Time
}

// NewBridge creates a new Matrix bridge.
func NewBridge(cfg *config.Config, b *bot.Bot, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		config: cfg,
		matrix: client,
		bot:    b,
		logger: logger.With("component", "bridge"),
	}, nil
}

// Login authenticates with the configured username and password and stores
// the resulting access token and device ID on the client.
func (br *Bridge) Login(ctx context.Context) error {
	resp, err := br.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: br.config.Matrix.Username,
		},
		Password:                 br.config.Matrix.Password,
		InitialDeviceDisplayName: "coven-responder",
		StoreCredentials:         true,
	})
	if err != nil {
		return err
	}

	br.logger.Info("logged in", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// UserID returns the logged-in Matrix user.
func (br *Bridge) UserID() id.UserID {
	return br.matrix.UserID
}

// Run starts syncing and blocks until ctx is cancelled.
func (br *Bridge) Run(ctx context.Context) error {
	br.logger.Info("starting matrix bridge",
		"homeserver", br.config.Matrix.Homeserver,
		"user_id", br.UserID().String(),
		"allowed_rooms", len(br.config.Bridge.AllowedRooms),
	)
	br.startedAt = time.Now()

	syncer, ok := br.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", br.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, br.handleMessageEvent)
	syncer.OnEventType(event.StateMember, br.handleMemberEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- br.matrix.SyncWithContext(ctx)
	}()

	br.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		br.logger.Info("shutting down matrix bridge")
		br.matrix.StopSync()
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent feeds a room message to the bot. Messages are handled
// inline on the sync goroutine so registry writes never interleave.
func (br *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == br.UserID() {
		return
	}
	if time.UnixMilli(evt.Timestamp).Before(br.startedAt) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	if content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !br.config.Bridge.IsRoomAllowed(roomID) {
		br.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	br.logger.Debug("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(content.Body, 50),
	)

	if br.config.Bridge.TypingIndicator {
		br.setTyping(evt.RoomID, true)
		defer br.setTyping(evt.RoomID, false)
	}

	reply, ok := br.bot.Handle(ctx, bot.Message{
		ID:         evt.ID.String(),
		Room:       roomID,
		Sender:     evt.Sender.String(),
		SenderName: br.displayName(ctx, evt.Sender),
		Text:       content.Body,
	})
	if !ok {
		return
	}

	br.sendReply(evt.RoomID, reply.Text)
}

// handleMemberEvent joins rooms the bot is invited to, when they are allowed.
func (br *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != br.UserID().String() {
		return
	}
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite {
		return
	}

	roomID := evt.RoomID.String()
	if !br.config.Bridge.IsRoomAllowed(roomID) {
		br.logger.Info("ignoring invite to non-allowed room", "room", roomID, "inviter", evt.Sender.String())
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := br.matrix.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		br.logger.Warn("failed to join room", "room", roomID, "error", err)
		return
	}
	br.logger.Info("joined room", "room", roomID, "inviter", evt.Sender.String())
}

// displayName resolves the sender's display name, falling back to the
// localpart of their user ID.
func (br *Bridge) displayName(ctx context.Context, userID id.UserID) string {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := br.matrix.GetDisplayName(ctx, userID)
	if err == nil && resp.DisplayName != "" {
		return resp.DisplayName
	}
	return fallbackName(userID)
}

// setTyping sends typing indicator to room.
func (br *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := br.matrix.UserTyping(ctx, roomID, typing, timeout); err != nil {
		br.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// sendReply posts text as a notice with an HTML rendering for clients that
// support formatted bodies.
func (br *Bridge) sendReply(roomID id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := br.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, replyContent(text)); err != nil {
		br.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

// replyContent builds the message content for a reply. Notices keep other
// bots from answering the reply.
func replyContent(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	if html, ok := renderHTML(text); ok {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	return content
}

// renderHTML converts markdown to HTML. It reports false when the result
// adds nothing over the plain body.
func renderHTML(text string) (string, bool) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", false
	}

	html := strings.TrimSpace(buf.String())
	inner := strings.TrimSuffix(strings.TrimPrefix(html, "<p>"), "</p>")
	if inner == text && !strings.Contains(inner, "<") {
		return "", false
	}
	return html, true
}

// fallbackName returns the localpart of a Matrix user ID.
func fallbackName(userID id.UserID) string {
	s := strings.TrimPrefix(userID.String(), "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
