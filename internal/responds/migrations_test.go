// ABOUTME: Tests for the responds schema migrations
// ABOUTME: Drives each persisted generation through the full pipeline to the record list

package responds

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-responder/internal/migrate"
	"github.com/2389/coven-responder/internal/store"
)

func migrateFrom(t *testing.T, seed map[string]string) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	ctx := context.Background()
	for k, v := range seed {
		require.NoError(t, s.Set(ctx, k, []byte(v)))
	}
	_, err := NewMigrator(s, nil).Migrate(ctx)
	require.NoError(t, err)
	return s
}

func blob(t *testing.T, s store.Store, key string) string {
	t.Helper()
	data, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return string(data)
}

func TestMigrations_FreshStore(t *testing.T) {
	s := migrateFrom(t, nil)
	ctx := context.Background()

	_, err := s.Get(ctx, BlobKey)
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing to migrate means nothing written")
	assert.Equal(t, "4", blob(t, s, CursorKey))

	entries, err := NewRegistry(s, nil).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMigrations_LegacyTopLevel(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		LegacyKey: `{"hi": "hello {sender}", "coffee break": "enjoy"}`,
	})

	_, err := s.Get(context.Background(), LegacyKey)
	assert.ErrorIs(t, err, store.ErrNotFound, "legacy key is removed")

	assert.JSONEq(t, `[
		{"name": "coffee break", "room": null, "value": "enjoy"},
		{"name": "hi", "room": null, "value": "hello {sender}"}
	]`, blob(t, s, BlobKey))
}

func TestMigrations_LegacyMergedUnderCurrent(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		LegacyKey: `{"hi": "old hi", "bye": "old bye"}`,
		BlobKey:   `{"hi": "new hi"}`,
	})

	assert.JSONEq(t, `[
		{"name": "bye", "room": null, "value": "old bye"},
		{"name": "hi", "room": null, "value": "new hi"}
	]`, blob(t, s, BlobKey))
}

func TestMigrations_LegacyAlongsideEmptyCurrent(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		LegacyKey: `{"hi": "hello"}`,
		BlobKey:   `{}`,
	})

	assert.JSONEq(t, `[{"name": "hi", "room": null, "value": "hello"}]`, blob(t, s, BlobKey))
}

func TestMigrations_FlatMap(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		BlobKey: `{"ping": "pong"}`,
	})

	assert.JSONEq(t, `[{"name": "ping", "room": null, "value": "pong"}]`, blob(t, s, BlobKey))
}

func TestMigrations_RoomScopedMap(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		BlobKey: `{
			"standup": {"value": "Standup at 10", "room": "team-a"},
			"lunch": {"value": "noon", "room": null},
			"deploy": {"value": "ask ops", "rooms": ["ops", "dev", "ops"]},
			"wave": {"value": "o/", "rooms": []},
			"plain": "still a string"
		}`,
	})

	assert.JSONEq(t, `[
		{"name": "deploy", "room": "ops", "value": "ask ops"},
		{"name": "deploy", "room": "dev", "value": "ask ops"},
		{"name": "lunch", "room": null, "value": "noon"},
		{"name": "plain", "room": null, "value": "still a string"},
		{"name": "standup", "room": "team-a", "value": "Standup at 10"},
		{"name": "wave", "room": null, "value": "o/"}
	]`, blob(t, s, BlobKey))
}

func TestMigrations_CurrentListIsNormalized(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		BlobKey: `[
			{"name": " Hi ", "room": null, "value": "hello"},
			{"name": "hi", "room": "", "value": "hello"},
			{"name": "hi", "room": "r", "value": "room"},
			{"name": "   ", "room": null, "value": ""}
		]`,
	})

	assert.JSONEq(t, `[
		{"name": "hi", "room": null, "value": "hello"},
		{"name": "hi", "room": "r", "value": "room"}
	]`, blob(t, s, BlobKey))
}

func TestMigrations_Idempotent(t *testing.T) {
	s := migrateFrom(t, map[string]string{
		LegacyKey: `{"hi": "hello"}`,
	})
	ctx := context.Background()
	before := blob(t, s, BlobKey)

	applied, err := NewMigrator(s, nil).Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, before, blob(t, s, BlobKey))
	assert.Equal(t, "4", blob(t, s, CursorKey))
}

func TestMigrations_StepsAreNoopsOnCurrentData(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStore()
	current := `[{"name":"hi","room":null,"value":"hello"}]`
	require.NoError(t, s.Set(ctx, BlobKey, []byte(current)))

	for _, step := range Migrations() {
		writes, err := step.Apply(ctx, s)
		require.NoError(t, err, step.Name)
		assert.Empty(t, writes, step.Name)
	}
}

func TestMigrations_MalformedAbortsWithoutLoss(t *testing.T) {
	tests := []struct {
		name string
		seed map[string]string
	}{
		{"legacy not an object", map[string]string{LegacyKey: `["hi"]`}},
		{"registry is a number", map[string]string{BlobKey: `42`}},
		{"value is a number", map[string]string{BlobKey: `{"hi": 3}`}},
		{"value is null", map[string]string{BlobKey: `{"hi": null}`}},
		{"object without value", map[string]string{BlobKey: `{"hi": {"room": "r"}}`}},
		{"record without value", map[string]string{BlobKey: `[{"name": "hi", "room": null}]`}},
		{"record room not a string", map[string]string{BlobKey: `[{"name": "hi", "room": 7, "value": "x"}]`}},
		{"not json", map[string]string{BlobKey: `{hi`}},
		{"triggers collide after normalization", map[string]string{BlobKey: `[{"name":"A","room":"","value":"1"},{"name":"a","room":null,"value":"2"}]`}},
		{"blank trigger with a value", map[string]string{BlobKey: `[{"name":"  ","room":null,"value":"orphan"}]`}},
		{"legacy with list registry", map[string]string{LegacyKey: `{"a": "b"}`, BlobKey: `[{"name":"c","room":null,"value":"d"}]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMockStore()
			ctx := context.Background()
			for k, v := range tt.seed {
				require.NoError(t, s.Set(ctx, k, []byte(v)))
			}

			_, err := NewMigrator(s, nil).Migrate(ctx)
			require.ErrorIs(t, err, migrate.ErrMalformedData)

			for k, v := range tt.seed {
				assert.Equal(t, v, blob(t, s, k), "seeded %s must be untouched", k)
			}
		})
	}
}

func TestMigrations_SQLiteEndToEnd(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "responder.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, LegacyKey, []byte(`{"coffee break": "Enjoy your coffee, {sender}!"}`)))

	applied, err := NewMigrator(s, nil).Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, applied)

	m := NewMatcher(NewRegistry(s, nil), nil)
	e, ok := m.Match(ctx, "let's take a coffee break now", "general")
	require.True(t, ok)
	assert.Equal(t, "Enjoy your coffee, Alex!", Render(e.Value, MessageVars("Alex", "general")))
}

func TestMigrations_CollidingTriggersStopBeforeNormalizing(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStore()
	require.NoError(t, s.Set(ctx, LegacyKey, []byte(`{"Lunch": "at noon", "lunch": "at one"}`)))

	m := NewMigrator(s, nil)
	applied, err := m.Migrate(ctx)
	require.ErrorIs(t, err, migrate.ErrMalformedData)
	assert.Contains(t, err.Error(), `"lunch"`)
	assert.Equal(t, 3, applied)

	cursor, err := m.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cursor, "normalize step must not be marked applied")

	assert.JSONEq(t, `[
		{"name": "Lunch", "room": null, "value": "at noon"},
		{"name": "lunch", "room": null, "value": "at one"}
	]`, blob(t, s, BlobKey), "both values survive for manual repair")
}
