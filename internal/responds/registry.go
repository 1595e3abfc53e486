// ABOUTME: Trigger registry backed by the keyed blob store
// ABOUTME: Every call re-reads the persisted list and writes back a single replacement

package responds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-responder/internal/store"
)

// ErrInvalidTrigger is returned when a trigger is empty after normalization.
var ErrInvalidTrigger = errors.New("trigger must not be empty")

// UpsertResult reports whether Upsert inserted or replaced an entry.
type UpsertResult int

const (
	Created UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "created"
}

// Query selects an entry for FindOne. Exactly one of Trigger or MatchText
// should be set; Room restricts the result to entries eligible in that room.
type Query struct {
	Trigger   string
	MatchText string
	Room      string
}

// Registry is the authoritative view of all entries.
// It holds no copy of the entries between calls.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

// NewRegistry creates a Registry over s.
func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		logger: logger.With("component", "responds"),
	}
}

func (r *Registry) load(ctx context.Context) ([]Entry, error) {
	data, err := r.store.Get(ctx, BlobKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading responds: %w", err)
	}
	return decodeEntries(data)
}

func (r *Registry) save(ctx context.Context, entries []Entry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, BlobKey, data); err != nil {
		return fmt.Errorf("writing responds: %w", err)
	}
	return nil
}

// Upsert stores value for the (trigger, room) pair. An existing entry for
// the same pair is replaced in place; entries under other scopes are untouched.
func (r *Registry) Upsert(ctx context.Context, trigger, value, room string) (UpsertResult, error) {
	trigger = NormalizeTrigger(trigger)
	if trigger == "" {
		return Created, ErrInvalidTrigger
	}
	room = strings.TrimSpace(room)

	entries, err := r.load(ctx)
	if err != nil {
		return Created, err
	}

	result := Created
	replaced := false
	for i := range entries {
		if entries[i].Trigger == trigger && entries[i].Room == room {
			entries[i].Value = value
			replaced = true
			result = Updated
			break
		}
	}
	if !replaced {
		entries = append(entries, Entry{Trigger: trigger, Value: value, Room: room})
	}

	if err := r.save(ctx, entries); err != nil {
		return Created, err
	}

	r.logger.Debug("respond saved", "trigger", trigger, "room", room, "result", result.String())
	return result, nil
}

// Remove deletes the entry for (trigger, room). An empty room deletes every
// entry for the trigger, global and room-scoped alike.
func (r *Registry) Remove(ctx context.Context, trigger, room string) (bool, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return r.remove(ctx, trigger, func(Entry) bool { return true })
	}
	return r.remove(ctx, trigger, func(e Entry) bool { return e.Room == room })
}

// RemoveGlobal deletes only the global entry for trigger.
func (r *Registry) RemoveGlobal(ctx context.Context, trigger string) (bool, error) {
	return r.remove(ctx, trigger, Entry.Global)
}

func (r *Registry) remove(ctx context.Context, trigger string, scope func(Entry) bool) (bool, error) {
	trigger = NormalizeTrigger(trigger)
	if trigger == "" {
		return false, nil
	}

	entries, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.Trigger == trigger && scope(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return false, nil
	}

	if err := r.save(ctx, kept); err != nil {
		return false, err
	}

	r.logger.Debug("respond removed", "trigger", trigger, "count", removed)
	return true, nil
}

// FindOne looks an entry up by exact trigger or by matching text.
//
// By Trigger, a room-scoped entry for q.Room is preferred over the global one.
// By MatchText, the first eligible entry in store order whose trigger appears
// in the text wins; use Matcher for room precedence.
func (r *Registry) FindOne(ctx context.Context, q Query) (Entry, bool, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	room := strings.TrimSpace(q.Room)

	if q.Trigger != "" {
		trigger := NormalizeTrigger(q.Trigger)
		var found Entry
		ok := false
		for _, e := range entries {
			if e.Trigger != trigger || !e.EligibleIn(room) {
				continue
			}
			if !e.Global() {
				return e, true, nil
			}
			if !ok {
				found, ok = e, true
			}
		}
		return found, ok, nil
	}

	if q.MatchText != "" {
		for _, e := range entries {
			if e.EligibleIn(room) && ContainsPhrase(q.MatchText, e.Trigger) {
				return e, true, nil
			}
		}
	}

	return Entry{}, false, nil
}

// List returns every entry in storage order.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	return r.load(ctx)
}

// ListRoom returns the entries eligible in room, in storage order.
func (r *Registry) ListRoom(ctx context.Context, room string) ([]Entry, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.EligibleIn(room) {
			out = append(out, e)
		}
	}
	return out, nil
}
