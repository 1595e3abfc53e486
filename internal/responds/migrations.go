// ABOUTME: Persisted-schema migrations for the responds blob
// ABOUTME: Upgrades legacy flat maps to the current list of {name, room, value} records

package responds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/2389/coven-responder/internal/migrate"
	"github.com/2389/coven-responder/internal/store"
)

// Migrations returns the ordered steps that bring the responds blob to the
// current generation. Steps are append-only: never reorder or remove one.
func Migrations() []migrate.Step {
	return []migrate.Step{
		{Name: "relocate legacy responds", Apply: relocateLegacy},
		{Name: "attach room scope", Apply: attachRoomScope},
		{Name: "flatten to records", Apply: flattenToRecords},
		{Name: "normalize triggers", Apply: normalizeRecords},
	}
}

// NewMigrator returns the migrator for the responds blob.
func NewMigrator(s store.Store, logger *slog.Logger) *migrate.Migrator {
	return migrate.New(s, CursorKey, Migrations(), logger)
}

// readBlob returns the trimmed value under key; absent, empty and null
// values all report ok=false.
func readBlob(ctx context.Context, r migrate.Reader, key string) ([]byte, bool, error) {
	data, err := r.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, false, nil
	}
	return data, true, nil
}

func isList(data []byte) bool   { return len(data) > 0 && data[0] == '[' }
func isObject(data []byte) bool { return len(data) > 0 && data[0] == '{' }

func malformed(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", migrate.ErrMalformedData, key, fmt.Sprintf(format, args...))
}

// isEmptyContainer reports whether data is {} or [].
func isEmptyContainer(data []byte) bool {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// relocateLegacy moves the oldest flat map from its legacy top-level key to
// BlobKey. When both exist, the legacy map is merged under the current one.
func relocateLegacy(ctx context.Context, r migrate.Reader) ([]store.Write, error) {
	legacy, ok, err := readBlob(ctx, r, LegacyKey)
	if err != nil || !ok {
		return nil, err
	}
	if !isObject(legacy) {
		return nil, malformed(LegacyKey, "expected an object")
	}

	current, ok, err := readBlob(ctx, r, BlobKey)
	if err != nil {
		return nil, err
	}
	if !ok || isEmptyContainer(current) {
		return []store.Write{store.Set(BlobKey, legacy), store.Delete(LegacyKey)}, nil
	}
	if !isObject(current) {
		return nil, malformed(BlobKey, "legacy responds present alongside a non-map registry")
	}

	var merged, newer map[string]json.RawMessage
	if err := json.Unmarshal(legacy, &merged); err != nil {
		return nil, malformed(LegacyKey, "%v", err)
	}
	if err := json.Unmarshal(current, &newer); err != nil {
		return nil, malformed(BlobKey, "%v", err)
	}
	for k, v := range newer {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding merged responds: %w", err)
	}
	return []store.Write{store.Set(BlobKey, data), store.Delete(LegacyKey)}, nil
}

// scopedValue is the second-generation shape: room bolted on as either a
// single nullable room or a list of rooms.
type scopedValue struct {
	Value *string  `json:"value"`
	Room  *string  `json:"room"`
	Rooms []string `json:"rooms,omitempty"`
}

// attachRoomScope turns {trigger: "value"} into {trigger: {"value": ..., "room": null}}.
// Values already in object form are checked and kept.
func attachRoomScope(ctx context.Context, r migrate.Reader) ([]store.Write, error) {
	data, ok, err := readBlob(ctx, r, BlobKey)
	if err != nil || !ok || isList(data) {
		return nil, err
	}
	if !isObject(data) {
		return nil, malformed(BlobKey, "expected an object or a list")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(BlobKey, "%v", err)
	}

	out := make(map[string]scopedValue, len(raw))
	for name, v := range raw {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, malformed(BlobKey, "trigger %q has a null value", name)
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[name] = scopedValue{Value: &s}
			continue
		}
		var sv scopedValue
		if err := json.Unmarshal(v, &sv); err != nil || sv.Value == nil {
			return nil, malformed(BlobKey, "trigger %q has no string value", name)
		}
		out[name] = sv
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding scoped responds: %w", err)
	}
	return []store.Write{store.Set(BlobKey, encoded)}, nil
}

// flattenToRecords turns the keyed map into the ordered record list. A
// "rooms" list yields one record per room; an empty list means global.
func flattenToRecords(ctx context.Context, r migrate.Reader) ([]store.Write, error) {
	data, ok, err := readBlob(ctx, r, BlobKey)
	if err != nil || !ok || isList(data) {
		return nil, err
	}
	if !isObject(data) {
		return nil, malformed(BlobKey, "expected an object or a list")
	}

	var scoped map[string]scopedValue
	if err := json.Unmarshal(data, &scoped); err != nil {
		return nil, malformed(BlobKey, "%v", err)
	}

	names := make([]string, 0, len(scoped))
	for name := range scoped {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		sv := scoped[name]
		if sv.Value == nil {
			return nil, malformed(BlobKey, "trigger %q has no string value", name)
		}

		rooms := scopeRooms(sv)
		if len(rooms) == 0 {
			entries = append(entries, Entry{Trigger: name, Value: *sv.Value})
			continue
		}
		for _, room := range rooms {
			entries = append(entries, Entry{Trigger: name, Value: *sv.Value, Room: room})
		}
	}

	encoded, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}
	return []store.Write{store.Set(BlobKey, encoded)}, nil
}

// scopeRooms lists the distinct non-empty rooms of sv in first-seen order.
func scopeRooms(sv scopedValue) []string {
	var rooms []string
	seen := make(map[string]bool)
	add := func(room string) {
		if room == "" || seen[room] {
			return
		}
		seen[room] = true
		rooms = append(rooms, room)
	}
	if sv.Room != nil {
		add(*sv.Room)
	}
	for _, room := range sv.Rooms {
		add(room)
	}
	return rooms
}

// persistedRecord is record with every field optional so missing values
// can be told apart from empty ones.
type persistedRecord struct {
	Name  *string `json:"name"`
	Room  *string `json:"room"`
	Value *string `json:"value"`
}

// normalizeRecords trims and lower-cases trigger names and treats an empty
// room as global. Records that normalize to the same (trigger, room) collapse
// only when their values agree, and a blank trigger is dropped only when it
// carries no value. Anything else would lose data, so it fails as malformed.
func normalizeRecords(ctx context.Context, r migrate.Reader) ([]store.Write, error) {
	data, ok, err := readBlob(ctx, r, BlobKey)
	if err != nil || !ok {
		return nil, err
	}
	if !isList(data) {
		return nil, malformed(BlobKey, "expected a list of records")
	}

	var records []persistedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, malformed(BlobKey, "%v", err)
	}

	type scopeKey struct{ trigger, room string }
	index := make(map[scopeKey]int)
	var entries []Entry
	for i, rec := range records {
		if rec.Name == nil || rec.Value == nil {
			return nil, malformed(BlobKey, "record %d is missing name or value", i)
		}
		e := Entry{Trigger: NormalizeTrigger(*rec.Name), Value: *rec.Value}
		if rec.Room != nil {
			e.Room = *rec.Room
		}
		if e.Trigger == "" {
			if e.Value != "" {
				return nil, malformed(BlobKey, "record %d has a blank trigger but value %q", i, e.Value)
			}
			continue
		}
		k := scopeKey{e.Trigger, e.Room}
		if at, dup := index[k]; dup {
			if entries[at].Value != e.Value {
				return nil, malformed(BlobKey, "triggers %q collide after normalization with different values", e.Trigger)
			}
			continue
		}
		index[k] = len(entries)
		entries = append(entries, e)
	}

	encoded, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(encoded, data) {
		return nil, nil
	}
	return []store.Write{store.Set(BlobKey, encoded)}, nil
}
