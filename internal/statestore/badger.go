// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/specialistvlad/gridbuild/internal/ctxlog"
	"github.com/specialistvlad/gridbuild/internal/graph"
)

const (
	flagNeedsRebuild byte = 1 << iota
	flagRemoved
)

// BadgerConfig configures the Badger store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Badger stores one key per resource location. The value is a single flag
// byte.
type Badger struct {
	db *badger.DB
}

// badgerLogger routes Badger's own logging into slog at debug level, except
// for errors.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens or creates the database.
func OpenBadger(ctx context.Context, cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store: path is required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).
		WithSyncWrites(true).
		WithLogger(&badgerLogger{logger: ctxlog.FromContext(ctx).With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return &Badger{db: db}, nil
}

// Load reads every entry of the database.
func (b *Badger) Load(ctx context.Context) (graph.Snapshot, error) {
	snap := make(graph.Snapshot)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			loc := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				if len(v) != 1 {
					return fmt.Errorf("state entry %s: malformed value", loc)
				}
				snap[loc] = graph.State{
					NeedsRebuild: v[0]&flagNeedsRebuild != 0,
					Removed:      v[0]&flagRemoved != 0,
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("State loaded.", "store", "badger", "entries", len(snap))
	return snap, nil
}

// Save drops the previous snapshot and writes the new one in one batch.
func (b *Badger) Save(ctx context.Context, snap graph.Snapshot) error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("saving state: clearing previous entries: %w", err)
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for loc, st := range snap {
		var v byte
		if st.NeedsRebuild {
			v |= flagNeedsRebuild
		}
		if st.Removed {
			v |= flagRemoved
		}
		if err := wb.Set([]byte(loc), []byte{v}); err != nil {
			return fmt.Errorf("saving state entry %s: %w", loc, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("State saved.", "store", "badger", "entries", len(snap))
	return nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}
