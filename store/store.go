package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const mutePrefix = "mute:"

// Store keeps mute records. Implementations must be safe for concurrent use.
type Store interface {
	IsSenderMuted(ctx context.Context, senderID string) (bool, error)
	MuteSender(ctx context.Context, senderID string, duration time.Duration) error
	UnmuteSender(ctx context.Context, senderID string) error
	Close() error
}

// BadgerStore persists mute records in BadgerDB. A record's TTL is the mute
// duration, so expired mutes disappear without a sweep.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

type badgerLogger struct {
	*slog.Logger
}

func (l *badgerLogger) Warningf(f string, v ...any) { l.Warn(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Errorf(f string, v ...any)   { l.Error(fmt.Sprintf(f, v...)) }
func (l *badgerLogger) Infof(f string, v ...any)    {}
func (l *badgerLogger) Debugf(f string, v ...any)   {}

// NewBadgerStore opens the database at path. With inMemory set, path is
// ignored and nothing touches the disk.
func NewBadgerStore(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Mute records carry no value, keep them in the LSM tree.
	opts.ValueThreshold = 1024
	opts.Logger = &badgerLogger{slog.Default()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) IsSenderMuted(ctx context.Context, senderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := []byte(mutePrefix + senderID)
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) MuteSender(ctx context.Context, senderID string, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("mute duration must be positive, got %s", duration)
	}
	slog.Info("Muting sender", "sender_id", senderID, "duration", duration.String())
	key := []byte(mutePrefix + senderID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, nil).WithTTL(duration))
	})
}

func (s *BadgerStore) UnmuteSender(ctx context.Context, senderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("Unmuting sender", "sender_id", senderID)
	key := []byte(mutePrefix + senderID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
