// ABOUTME: Cursor-driven migration pipeline over a keyed blob store
// ABOUTME: Applies each step exactly once, committing its writes together with the cursor

package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/2389/coven-responder/internal/store"
)

// ErrMalformedData is returned by a step that finds persisted data it does
// not recognise. It is never recovered from: startup must abort.
var ErrMalformedData = errors.New("malformed persisted data")

// Reader gives a step read access to the persisted blobs.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Step transforms the persisted data from one generation to the next.
// Apply returns the writes to commit; it must not write to the store itself.
// A step whose input is absent returns no writes.
type Step struct {
	Name  string
	Apply func(ctx context.Context, r Reader) ([]store.Write, error)
}

// Migrator runs Steps in order, tracking progress in a persisted cursor.
type Migrator struct {
	store     store.Store
	cursorKey string
	steps     []Step
	logger    *slog.Logger
}

// New creates a Migrator persisting its cursor under cursorKey.
func New(s store.Store, cursorKey string, steps []Step, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		store:     s,
		cursorKey: cursorKey,
		steps:     steps,
		logger:    logger.With("component", "migrate", "cursor", cursorKey),
	}
}

// Cursor returns the number of steps already applied.
func (m *Migrator) Cursor(ctx context.Context) (int, error) {
	raw, err := m.store.Get(ctx, m.cursorKey)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading migration cursor: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: migration cursor %q is not a count", ErrMalformedData, raw)
	}
	return n, nil
}

// Pending returns the number of steps not yet applied.
func (m *Migrator) Pending(ctx context.Context) (int, error) {
	cursor, err := m.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	if cursor >= len(m.steps) {
		return 0, nil
	}
	return len(m.steps) - cursor, nil
}

// Migrate applies every step from the cursor onwards and returns how many ran.
// Each step's writes and the advanced cursor are committed in one store write,
// so a failure leaves the store at the last completed step.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	cursor, err := m.Cursor(ctx)
	if err != nil {
		return 0, err
	}

	m.logger.Debug("last migration", "index", cursor)

	if cursor > len(m.steps) {
		m.logger.Warn("migration cursor ahead of known steps", "index", cursor, "steps", len(m.steps))
		return 0, nil
	}

	applied := 0
	for i := cursor; i < len(m.steps); i++ {
		step := m.steps[i]

		writes, err := step.Apply(ctx, m.store)
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", i+1, step.Name, err)
		}

		next := strconv.Itoa(i + 1)
		writes = append(writes, store.Set(m.cursorKey, []byte(next)))
		if err := m.store.Write(ctx, writes...); err != nil {
			return applied, fmt.Errorf("committing migration %d (%s): %w", i+1, step.Name, err)
		}

		applied++
		m.logger.Info("applied migration", "index", i+1, "name", step.Name, "writes", len(writes)-1)
	}

	m.logger.Debug("last migrated", "index", cursor+applied)
	return applied, nil
}
