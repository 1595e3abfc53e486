// ABOUTME: Tests for the trigger registry
// ABOUTME: Covers upsert/remove scoping, lookups, and write-through persistence

package responds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-responder/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MockStore) {
	t.Helper()
	s := store.NewMockStore()
	return NewRegistry(s, nil), s
}

func TestRegistry_UpsertRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	result, err := reg.Upsert(ctx, "  Coffee Break ", "Enjoy your coffee, {sender}!", "")
	require.NoError(t, err)
	assert.Equal(t, Created, result)

	e, ok, err := reg.FindOne(ctx, Query{Trigger: "coffee break"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "coffee break", e.Trigger)
	assert.Equal(t, "Enjoy your coffee, {sender}!", e.Value)
	assert.True(t, e.Global())
}

func TestRegistry_UpsertTwiceUpdates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	result, err := reg.Upsert(ctx, "standup", "Standup at 10", "team-a")
	require.NoError(t, err)
	assert.Equal(t, Created, result)

	result, err = reg.Upsert(ctx, "STANDUP", "Standup at 11", "team-a")
	require.NoError(t, err)
	assert.Equal(t, Updated, result)

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Standup at 11", entries[0].Value)
}

func TestRegistry_UpsertKeepsOtherScopes(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "lunch", "global lunch", "")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "lunch", "lunch in a", "room-a")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "lunch", "lunch in b", "room-b")
	require.NoError(t, err)
	result, err := reg.Upsert(ctx, "lunch", "lunch in a again", "room-a")
	require.NoError(t, err)
	assert.Equal(t, Updated, result)

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Trigger: "lunch", Value: "global lunch"},
		{Trigger: "lunch", Value: "lunch in a again", Room: "room-a"},
		{Trigger: "lunch", Value: "lunch in b", Room: "room-b"},
	}, entries)
}

func TestRegistry_UpsertInvalidTrigger(t *testing.T) {
	reg, s := newTestRegistry(t)
	ctx := context.Background()

	for _, trigger := range []string{"", "   ", "\t\n"} {
		_, err := reg.Upsert(ctx, trigger, "value", "")
		assert.ErrorIs(t, err, ErrInvalidTrigger, "trigger %q", trigger)
	}

	_, err := s.Get(ctx, BlobKey)
	assert.ErrorIs(t, err, store.ErrNotFound, "invalid upserts must not write")
}

func TestRegistry_FindOneRoomEligibility(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "deploy", "deploys in ops", "ops")
	require.NoError(t, err)

	_, ok, err := reg.FindOne(ctx, Query{Trigger: "deploy", Room: "dev"})
	require.NoError(t, err)
	assert.False(t, ok, "room-scoped entry must not be visible in another room")

	_, ok, err = reg.FindOne(ctx, Query{Trigger: "deploy"})
	require.NoError(t, err)
	assert.False(t, ok, "room-scoped entry must not be visible without a room")

	e, ok, err := reg.FindOne(ctx, Query{Trigger: "deploy", Room: "ops"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deploys in ops", e.Value)

	_, err = reg.Upsert(ctx, "deploy", "deploys anywhere", "")
	require.NoError(t, err)

	e, ok, err = reg.FindOne(ctx, Query{Trigger: "deploy", Room: "dev"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deploys anywhere", e.Value)

	e, ok, err = reg.FindOne(ctx, Query{Trigger: "deploy", Room: "ops"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deploys in ops", e.Value, "room entry wins over global")
}

func TestRegistry_FindOneByMatchText(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "hi", "hello!", "")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "history", "a history lesson", "books")
	require.NoError(t, err)

	_, ok, err := reg.FindOne(ctx, Query{MatchText: "history is fun", Room: "general"})
	require.NoError(t, err)
	assert.False(t, ok)

	e, ok, err := reg.FindOne(ctx, Query{MatchText: "history is fun", Room: "books"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "history", e.Trigger)

	e, ok, err = reg.FindOne(ctx, Query{MatchText: "oh, hi there"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", e.Trigger)
}

func TestRegistry_RemoveAllScopes(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, room := range []string{"", "a", "b"} {
		_, err := reg.Upsert(ctx, "ping", "pong", room)
		require.NoError(t, err)
	}
	_, err := reg.Upsert(ctx, "other", "stays", "")
	require.NoError(t, err)

	removed, err := reg.Remove(ctx, " PING ", "")
	require.NoError(t, err)
	assert.True(t, removed)

	for _, room := range []string{"", "a", "b", "c"} {
		_, ok, err := reg.FindOne(ctx, Query{Trigger: "ping", Room: room})
		require.NoError(t, err)
		assert.False(t, ok, "room %q", room)
	}

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Trigger: "other", Value: "stays"}}, entries)
}

func TestRegistry_RemoveSingleScope(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, room := range []string{"", "a", "b"} {
		_, err := reg.Upsert(ctx, "ping", "pong "+room, room)
		require.NoError(t, err)
	}

	removed, err := reg.Remove(ctx, "ping", "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Remove(ctx, "ping", "a")
	require.NoError(t, err)
	assert.False(t, removed, "second removal finds nothing")

	removed, err = reg.RemoveGlobal(ctx, "ping")
	require.NoError(t, err)
	assert.True(t, removed)

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Trigger: "ping", Value: "pong b", Room: "b"}}, entries)
}

func TestRegistry_RemoveMissing(t *testing.T) {
	reg, _ := newTestRegistry(t)

	removed, err := reg.Remove(context.Background(), "nothing", "")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistry_ListRoom(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "a", "1", "")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "b", "2", "x")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "c", "3", "y")
	require.NoError(t, err)

	entries, err := reg.ListRoom(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Trigger: "a", Value: "1"}, {Trigger: "b", Value: "2", Room: "x"}}, entries)
}

func TestRegistry_PersistedShape(t *testing.T) {
	reg, s := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Upsert(ctx, "hi", "hello", "")
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, "hi", "hello room", "!r:example.org")
	require.NoError(t, err)

	data, err := s.Get(ctx, BlobKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name": "hi", "room": null, "value": "hello"},
		{"name": "hi", "room": "!r:example.org", "value": "hello room"}
	]`, string(data))
}

func TestRegistry_ReadsThroughStore(t *testing.T) {
	reg, s := newTestRegistry(t)
	ctx := context.Background()

	// Another writer replaces the blob between calls
	require.NoError(t, s.Set(ctx, BlobKey, []byte(`[{"name":"external","room":null,"value":"seen"}]`)))

	e, ok, err := reg.FindOne(ctx, Query{Trigger: "external"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "seen", e.Value)
}

func TestRegistry_StoreErrorsPropagate(t *testing.T) {
	reg, s := newTestRegistry(t)
	boom := errors.New("disk full")
	s.FailWrites = boom

	_, err := reg.Upsert(context.Background(), "hi", "hello", "")
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_CorruptBlob(t *testing.T) {
	reg, s := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, BlobKey, []byte(`{"hi": "not migrated"}`)))

	_, err := reg.List(ctx)
	assert.Error(t, err)
}
