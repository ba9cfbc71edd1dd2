package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cockroachdb/pebble"
)

const sessionKeyPrefix = "flow/session/"

// PebbleStore keeps sessions in a pebble database so in-progress flows
// survive a restart. Values are JSON under flow/session/<user_id>.
type PebbleStore struct {
	db *pebble.DB
}

var (
	_ SessionStore  = (*PebbleStore)(nil)
	_ SessionLister = (*PebbleStore)(nil)
)

// OpenPebbleStore opens or creates the database directory at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database.
func (p *PebbleStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func sessionKey(userID int64) []byte {
	return []byte(sessionKeyPrefix + strconv.FormatInt(userID, 10))
}

func (p *PebbleStore) Get(_ context.Context, userID int64) (*Session, error) {
	data, closer, err := p.db.Get(sessionKey(userID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}
	defer closer.Close()

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &s, nil
}

func (p *PebbleStore) Set(_ context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", s.UserID, err)
	}
	if err := p.db.Set(sessionKey(s.UserID), data, pebble.Sync); err != nil {
		return fmt.Errorf("set session %d: %w", s.UserID, err)
	}
	return nil
}

func (p *PebbleStore) Clear(_ context.Context, userID int64) error {
	if err := p.db.Delete(sessionKey(userID), pebble.Sync); err != nil {
		return fmt.Errorf("clear session %d: %w", userID, err)
	}
	return nil
}

// List returns every stored session in key order.
func (p *PebbleStore) List(_ context.Context) ([]*Session, error) {
	prefix := []byte(sessionKeyPrefix)
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(bytes.Clone(prefix[:len(prefix)-1]), prefix[len(prefix)-1]+1),
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer it.Close()

	var out []*Session
	for ok := it.First(); ok; ok = it.Next() {
		var s Session
		if err := json.Unmarshal(it.Value(), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", it.Key(), err)
		}
		out = append(out, &s)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}
