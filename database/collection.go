package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var corruptDocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jmaka_store_corrupt_documents_total",
	Help: "JSON collection reads that failed to parse and were treated as empty",
}, []string{"collection"})

// Collection is a JSON array document on disk guarded by a single lock. Every
// exported method holds the lock for its whole read-modify-write sequence; there is
// no in-memory copy between calls.
type Collection[T any] struct {
	path   string
	lock   *Lock
	logger *slog.Logger
}

func NewCollection[T any](path string, lock *Lock, logger *slog.Logger) *Collection[T] {
	return &Collection[T]{
		path:   path,
		lock:   lock,
		logger: logger.With(slog.String("component", "store"), slog.String("collection", lock.Name())),
	}
}

// ReadAll loads the whole collection. Absent, blank or unparseable files read as empty.
func (c *Collection[T]) ReadAll(ctx context.Context) ([]T, error) {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.load()
}

// WriteAll replaces the collection with items.
func (c *Collection[T]) WriteAll(ctx context.Context, items []T) error {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.store(items)
}

func (c *Collection[T]) Append(ctx context.Context, item T) error {
	return c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		return append(items, item), true, nil
	})
}

// UpdateLast applies mutate to the most recently appended item matching match.
// It reports false when nothing matched, in which case the file is not rewritten.
func (c *Collection[T]) UpdateLast(ctx context.Context, match func(T) bool, mutate func(T) T) (T, bool, error) {
	var updated T
	var found bool
	err := c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		for i := len(items) - 1; i >= 0; i-- {
			if !match(items[i]) {
				continue
			}
			items[i] = mutate(items[i])
			updated, found = items[i], true
			return items, true, nil
		}
		return items, false, nil
	})
	return updated, found, err
}

// RemoveWhere drops every item matching pred and returns the removed ones so the
// caller can clean up files after the lock is released.
func (c *Collection[T]) RemoveWhere(ctx context.Context, pred func(T) bool) ([]T, error) {
	var removed []T
	err := c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		kept := make([]T, 0, len(items))
		for _, it := range items {
			if pred(it) {
				removed = append(removed, it)
			} else {
				kept = append(kept, it)
			}
		}
		return kept, len(removed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Mutate runs fn as one critical section. fn returns the new item list and whether it
// should be persisted.
func (c *Collection[T]) Mutate(ctx context.Context, fn func(items []T) ([]T, bool, error)) error {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	items, err := c.load()
	if err != nil {
		return err
	}
	next, changed, err := fn(items)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return c.store(next)
}

// load must be called with the lock held.
func (c *Collection[T]) load() ([]T, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		corruptDocumentsTotal.WithLabelValues(c.lock.Name()).Inc()
		c.logger.Warn("unparseable collection treated as empty",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// store must be called with the lock held. It writes a sibling temp file and renames
// it over the document so readers never see a partial file.
func (c *Collection[T]) store(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.lock.Name(), err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", c.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", c.path, err)
	}
	return nil
}
