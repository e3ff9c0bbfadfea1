/*
Package badgerstore implements store.Store on an embedded Badger database.

Records are JSON values under typed key prefixes. Secondary indexes are empty
values whose keys sort chronologically thanks to a zero-padded nanosecond
timestamp segment:

	user:{uid}                         user record
	msg:{mid}                          message record
	conv:{uid}:{uid}:{ts}:{mid}        direct conversation index, participants sorted
	gmsg:{gid}:{ts}:{mid}              group history index
	fp:{fingerprint}:{ts}:{mid}        dedup index, expires after the retention window
	group:{gid}                        group record
	member:{uid}:{gid}                 membership index

Every variable segment is hex encoded on its own, so user-supplied
identifiers can never collide with the separator.
*/
package badgerstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/app/user"
	"chatrelay/internal/pkg/logx"
)

const (
	// conflictRetries bounds retries of a transaction that lost an optimistic race.
	conflictRetries = 3

	// minDedupRetention is the lower bound on how long dedup index entries live.
	minDedupRetention = time.Minute

	tsWidth = 19
)

// Options configures the Badger store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; used by tests and ephemeral runs.
	InMemory bool

	// DedupRetention is how long a fingerprint stays findable. It must cover
	// the pipeline's dedup window and is used as given, floored at one minute.
	DedupRetention time.Duration
}

// Store is a store.Store backed by Badger.
type Store struct {
	db        *badger.DB
	retention time.Duration
	logger    zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the Badger database described by opts.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLoggingLevel(badger.ERROR)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", opts.Path, err)
	}

	retention := max(opts.DedupRetention, minDedupRetention)

	return &Store{
		db:        db,
		retention: retention,
		logger:    logx.Component("BadgerStore"),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// --- keys ---

func seg(s string) string {
	return hex.EncodeToString([]byte(s))
}

func unseg(s string) (string, error) {
	raw, err := hex.DecodeString(s)
	return string(raw), err
}

func ts(t time.Time) string {
	return fmt.Sprintf("%0*d", tsWidth, t.UnixNano())
}

func userKey(id string) []byte    { return []byte("user:" + seg(id)) }
func messageKey(id string) []byte { return []byte("msg:" + seg(id)) }
func groupKey(id string) []byte   { return []byte("group:" + seg(id)) }

func conversationPrefix(a, b string) string {
	lo, hi := message.ConversationPair(a, b)
	return "conv:" + seg(lo) + ":" + seg(hi) + ":"
}

func groupMessagesPrefix(groupID string) string {
	return "gmsg:" + seg(groupID) + ":"
}

func fingerprintPrefix(fp string) string {
	return "fp:" + fp + ":"
}

func memberPrefix(userID string) string {
	return "member:" + seg(userID) + ":"
}

func indexKey(prefix string, at time.Time, id string) []byte {
	return []byte(prefix + ts(at) + ":" + seg(id))
}

// parseIndexKey splits the "{ts}:{id}" tail of an index key.
func parseIndexKey(key []byte, prefixLen int) (time.Time, string, error) {
	tail := string(key[prefixLen:])
	tsPart, idPart, ok := strings.Cut(tail, ":")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed index key %q", key)
	}
	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed index timestamp %q: %w", key, err)
	}
	id, err := unseg(idPart)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed index id %q: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

// --- helpers ---

// update runs fn in a read-write transaction, retrying on optimistic conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := range conflictRetries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("Transaction conflict, retrying.")
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func mustNotExist(txn *badger.Txn, key []byte) error {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return store.ErrAlreadyExists
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil
	default:
		return err
	}
}

// indexIDs returns the ids of an index prefix in key order.
func indexIDs(txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
		_, id, err := parseIndexKey(it.Item().Key(), len(prefix))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// messageRecord is the stored form of a message; it keeps the fingerprint
// that the wire form omits.
type messageRecord struct {
	message.Message
	Fingerprint string `json:"fingerprint"`
}

func toRecord(m message.Message) messageRecord {
	return messageRecord{Message: m, Fingerprint: m.Fingerprint}
}

func (r messageRecord) toMessage() message.Message {
	m := r.Message
	m.Fingerprint = r.Fingerprint
	return m
}

func getMessage(txn *badger.Txn, id string) (message.Message, error) {
	var rec messageRecord
	if err := getJSON(txn, messageKey(id), &rec); err != nil {
		return message.Message{}, err
	}
	return rec.toMessage(), nil
}

func loadMessages(txn *badger.Txn, ids []string) ([]message.Message, error) {
	messages := make([]message.Message, 0, len(ids))
	for _, id := range ids {
		m, err := getMessage(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// --- users ---

// EnsureUser creates the user if it does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, id, displayName string) (user.User, error) {
	var u user.User
	err := s.update(ctx, func(txn *badger.Txn) error {
		err := getJSON(txn, userKey(id), &u)
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		u = user.User{ID: id, DisplayName: displayName}
		return setJSON(txn, userKey(id), u)
	})
	return u, err
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	return u, err
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var users []user.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("user:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			var u user.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(users, func(a, b user.User) int { return strings.Compare(a.ID, b.ID) })
	return users, nil
}

// SetPresence records the online flag and last-seen time of a user.
func (s *Store) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var u user.User
		if err := getJSON(txn, userKey(id), &u); err != nil {
			return err
		}
		u.Online = online
		if lastSeen != nil {
			u.LastSeen = lastSeen
		}
		return setJSON(txn, userKey(id), u)
	})
}

// --- messages ---

// InsertMessage stores m and its indexes.
func (s *Store) InsertMessage(ctx context.Context, m message.Message) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := mustNotExist(txn, messageKey(m.ID)); err != nil {
			return err
		}
		if err := setJSON(txn, messageKey(m.ID), toRecord(m)); err != nil {
			return err
		}

		var historyKey []byte
		if m.Group != "" {
			historyKey = indexKey(groupMessagesPrefix(m.Group), m.Timestamp, m.ID)
		} else {
			historyKey = indexKey(conversationPrefix(m.Sender, m.Receiver), m.Timestamp, m.ID)
		}
		if err := txn.Set(historyKey, nil); err != nil {
			return err
		}

		if m.Fingerprint == "" {
			return nil
		}
		entry := badger.NewEntry(indexKey(fingerprintPrefix(m.Fingerprint), m.Timestamp, m.ID), nil).
			WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
}

// GetMessage returns the message with the given id.
func (s *Store) GetMessage(ctx context.Context, id string) (message.Message, error) {
	var m message.Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		m, err = getMessage(txn, id)
		return err
	})
	return m, err
}

// FindRecentDuplicate returns the newest message with fingerprint fp sent at or after since.
func (s *Store) FindRecentDuplicate(ctx context.Context, fp string, since time.Time) (message.Message, bool, error) {
	var (
		found message.Message
		ok    bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := fingerprintPrefix(fp)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= the seek key.
		it.Seek(append([]byte(prefix), 0xFF))
		if !it.ValidForPrefix([]byte(prefix)) {
			return nil
		}

		at, id, err := parseIndexKey(it.Item().Key(), len(prefix))
		if err != nil {
			return err
		}
		if at.Before(since) {
			return nil
		}

		found, err = getMessage(txn, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return found, ok, err
}

// AdvanceStatus moves the message to next if next is strictly later.
func (s *Store) AdvanceStatus(ctx context.Context, id string, next message.Status) (message.Message, error) {
	var m message.Message
	conflict := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		conflict = false

		var err error
		m, err = getMessage(txn, id)
		if err != nil {
			return err
		}
		if !m.Status.CanAdvanceTo(next) {
			conflict = true
			return nil
		}
		m.Status = next
		return setJSON(txn, messageKey(id), toRecord(m))
	})
	if err != nil {
		return message.Message{}, err
	}
	if conflict {
		return m, store.ErrStatusConflict
	}
	return m, nil
}

// Conversation returns the direct messages exchanged by a and b, oldest first.
func (s *Store) Conversation(ctx context.Context, a, b string) ([]message.Message, error) {
	var messages []message.Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := indexIDs(txn, conversationPrefix(a, b))
		if err != nil {
			return err
		}
		messages, err = loadMessages(txn, ids)
		return err
	})
	return messages, err
}

// GroupMessages returns the messages posted to groupID, oldest first.
func (s *Store) GroupMessages(ctx context.Context, groupID string) ([]message.Message, error) {
	var messages []message.Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := indexIDs(txn, groupMessagesPrefix(groupID))
		if err != nil {
			return err
		}
		messages, err = loadMessages(txn, ids)
		return err
	})
	return messages, err
}

// --- groups ---

// CreateGroup stores g and its membership index.
func (s *Store) CreateGroup(ctx context.Context, g group.Group) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := mustNotExist(txn, groupKey(g.ID)); err != nil {
			return err
		}
		if err := setJSON(txn, groupKey(g.ID), g); err != nil {
			return err
		}
		for _, member := range g.Members {
			if err := txn.Set([]byte(memberPrefix(member)+seg(g.ID)), []byte(g.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGroup returns the group with the given id.
func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	var g group.Group
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, groupKey(id), &g)
	})
	return g, err
}

// GroupsForUser returns the groups userID belongs to, oldest first.
func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]group.Group, error) {
	var groups []group.Group
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(memberPrefix(userID))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			groupID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var g group.Group
			if err := getJSON(txn, groupKey(string(groupID)), &g); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			groups = append(groups, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(groups, func(a, b group.Group) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return groups, nil
}
