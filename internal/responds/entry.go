// ABOUTME: Entry value type and its persisted record encoding
// ABOUTME: Entries map a normalized trigger to a reply template, optionally scoped to a room

package responds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Store keys used by the registry and its migrations.
const (
	BlobKey   = "responds"
	CursorKey = "responds_migrations"
	LegacyKey = "data.responds"
)

// Entry associates a trigger with a reply template.
// An empty Room makes the entry global: it is eligible in every room.
type Entry struct {
	Trigger string
	Value   string
	Room    string
}

// Global reports whether the entry has no room scope.
func (e Entry) Global() bool {
	return e.Room == ""
}

// EligibleIn reports whether the entry may answer in room.
func (e Entry) EligibleIn(room string) bool {
	return e.Room == "" || e.Room == room
}

// NormalizeTrigger trims and lower-cases a trigger phrase.
func NormalizeTrigger(trigger string) string {
	return strings.ToLower(strings.TrimSpace(trigger))
}

// record is the persisted shape of an Entry: {"name", "room", "value"} with
// a null room for global entries.
type record struct {
	Name  string  `json:"name"`
	Room  *string `json:"room"`
	Value string  `json:"value"`
}

func encodeEntries(entries []Entry) ([]byte, error) {
	records := make([]record, 0, len(entries))
	for _, e := range entries {
		r := record{Name: e.Trigger, Value: e.Value}
		if e.Room != "" {
			room := e.Room
			r.Room = &room
		}
		records = append(records, r)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding responds: %w", err)
	}
	return data, nil
}

func decodeEntries(data []byte) ([]Entry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding responds: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		e := Entry{Trigger: r.Name, Value: r.Value}
		if r.Room != nil {
			e.Room = *r.Room
		}
		entries = append(entries, e)
	}
	return entries, nil
}
