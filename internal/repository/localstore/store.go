// Package localstore keeps wizard sessions in a single BoltDB file for the
// command-line client.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/repository"
)

var bucketSessions = []byte("sessions")

// Store keeps one JSON document per session in a bbolt bucket.
type Store struct {
	db *bolt.DB
}

// Open creates the parent directory and the sessions bucket if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("localstore: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketSessions)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("localstore: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(_ context.Context, conv domain.Conversation) error {
	if conv.SessionID == "" {
		return errors.New("localstore: CreateSession: session id is required")
	}
	enc, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("localstore: CreateSession: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(conv.SessionID)) != nil {
			return fmt.Errorf("localstore: CreateSession: %w", repository.ErrConflict)
		}
		return b.Put([]byte(conv.SessionID), enc)
	})
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSessions).Get([]byte(sessionID))
		if v == nil {
			return repository.ErrNotFound
		}
		return json.Unmarshal(v, &conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// UpdateSession compares the stored version with prev inside the write
// transaction, so a stale writer gets ErrConflict.
func (s *Store) UpdateSession(_ context.Context, prev, next domain.Conversation) error {
	if prev.SessionID == "" || prev.SessionID != next.SessionID {
		return errors.New("localstore: UpdateSession: session ids must match")
	}
	if next.Version != prev.Version+1 {
		return fmt.Errorf("localstore: UpdateSession: next version %d must follow %d", next.Version, prev.Version)
	}
	enc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("localstore: UpdateSession: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		v := b.Get([]byte(prev.SessionID))
		if v == nil {
			return repository.ErrNotFound
		}
		var stored struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(v, &stored); err != nil {
			return fmt.Errorf("localstore: UpdateSession decode: %w", err)
		}
		if stored.Version != prev.Version {
			return fmt.Errorf("localstore: UpdateSession: %w", repository.ErrConflict)
		}
		return b.Put([]byte(next.SessionID), enc)
	})
}

// ListRecentSessions scans every session; the local file holds one user's
// history, so a full scan stays small.
func (s *Store) ListRecentSessions(_ context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		return nil, errors.New("localstore: ListRecentSessions: limit must be positive")
	}
	var out []domain.SessionSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var conv domain.Conversation
			if err := json.Unmarshal(v, &conv); err != nil {
				return err
			}
			out = append(out, conv.Summary())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("localstore: ListRecentSessions: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
