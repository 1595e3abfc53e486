// Package responds stores trigger/reply pairs and matches chat messages
// against them.
//
// # Entries
//
// An Entry maps a normalized trigger (trimmed, lower-cased) to a reply
// template. An entry may be scoped to a room; an unscoped entry is global
// and eligible everywhere. For a given trigger there is at most one global
// entry and at most one entry per room.
//
// # Registry
//
// Registry is the only writer of the persisted list. It keeps nothing in
// memory between calls: each operation reads the blob, works on a local
// copy, and writes the whole list back.
//
// # Matching
//
// A trigger matches when it occurs in the message, case-insensitively,
// bounded on each side by the edge of the text, whitespace, or one of the
// characters , . ' " < > { } [ ] and the hyphen.
//
// Matcher prefers an entry scoped to the caller's room over a global one
// and otherwise takes the first match in store order.
//
// # Persisted format
//
// The blob under BlobKey is a JSON list:
//
//	[{"name": "coffee break", "room": null, "value": "Enjoy your coffee, {sender}!"}]
//
// Older generations are upgraded by the steps in Migrations, run through
// the migrate package before the registry is used.
package responds
