package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatrelay/internal/app/group"
	"chatrelay/internal/app/message"
	"chatrelay/internal/app/store"
	"chatrelay/internal/app/user"
)

// Store is a store.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps pool. The store owns the pool and closes it on Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- users ---

const userColumns = `id, display_name, online, last_seen`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Online, &u.LastSeen); err != nil {
		return user.User{}, translate(err)
	}
	u.LastSeen = utcPtr(u.LastSeen)
	return u, nil
}

func (s *Store) EnsureUser(ctx context.Context, id, displayName string) (user.User, error) {
	const q = `
		WITH ins AS (
			INSERT INTO users (id, display_name) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
			RETURNING ` + userColumns + `
		)
		SELECT ` + userColumns + ` FROM ins
		UNION ALL
		SELECT ` + userColumns + ` FROM users WHERE id = $1
		LIMIT 1`

	return scanUser(s.pool.QueryRow(ctx, q, id, displayName))
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, translate(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
		return scanUser(row)
	})
}

func (s *Store) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET online = $2, last_seen = COALESCE($3, last_seen) WHERE id = $1`,
		id, online, lastSeen)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- messages ---

const messageColumns = `id, sender_id, receiver_id, group_id, body, attachment, status, fingerprint, created_at, client_timestamp`

func scanMessage(row pgx.Row) (message.Message, error) {
	var (
		m                 message.Message
		receiver, groupID *string
		status            int16
	)
	err := row.Scan(&m.ID, &m.Sender, &receiver, &groupID, &m.Body, &m.Attachment,
		&status, &m.Fingerprint, &m.Timestamp, &m.ClientTimestamp)
	if err != nil {
		return message.Message{}, translate(err)
	}

	m.Status = message.Status(status)
	if !m.Status.Valid() {
		return message.Message{}, fmt.Errorf("message %s has invalid status %d", m.ID, status)
	}
	if receiver != nil {
		m.Receiver = *receiver
	}
	if groupID != nil {
		m.Group = *groupID
	}
	m.Timestamp = m.Timestamp.UTC()
	m.ClientTimestamp = utcPtr(m.ClientTimestamp)
	return m, nil
}

func (s *Store) collectMessages(ctx context.Context, q string, args ...any) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Message, error) {
		return scanMessage(row)
	})
}

func (s *Store) InsertMessage(ctx context.Context, m message.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Sender, nullable(m.Receiver), nullable(m.Group), m.Body, m.Attachment,
		int16(m.Status), m.Fingerprint, m.Timestamp, m.ClientTimestamp)
	return translate(err)
}

func (s *Store) GetMessage(ctx context.Context, id string) (message.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (s *Store) FindRecentDuplicate(ctx context.Context, fp string, since time.Time) (message.Message, bool, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE fingerprint = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1`, fp, since))
	if errors.Is(err, store.ErrNotFound) {
		return message.Message{}, false, nil
	}
	if err != nil {
		return message.Message{}, false, err
	}
	return m, true, nil
}

// AdvanceStatus relies on the WHERE clause as the compare-and-set; a miss is
// resolved into not-found or conflict with a follow-up read.
func (s *Store) AdvanceStatus(ctx context.Context, id string, next message.Status) (message.Message, error) {
	if !next.Valid() {
		return message.Message{}, fmt.Errorf("invalid status %d", int(next))
	}

	m, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET status = $2
		WHERE id = $1 AND status < $2
		RETURNING `+messageColumns, id, int16(next)))
	if !errors.Is(err, store.ErrNotFound) {
		return m, err
	}

	current, err := s.GetMessage(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	return current, store.ErrStatusConflict
}

func (s *Store) Conversation(ctx context.Context, a, b string) ([]message.Message, error) {
	return s.collectMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE group_id IS NULL
		  AND LEAST(sender_id, receiver_id) = LEAST($1::text, $2::text)
		  AND GREATEST(sender_id, receiver_id) = GREATEST($1::text, $2::text)
		ORDER BY created_at, id`, a, b)
}

func (s *Store) GroupMessages(ctx context.Context, groupID string) ([]message.Message, error) {
	return s.collectMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE group_id = $1
		ORDER BY created_at, id`, groupID)
}

// --- groups ---

func (s *Store) CreateGroup(ctx context.Context, g group.Group) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO groups (id, name, avatar, created_at) VALUES ($1, $2, $3, $4)`,
			g.ID, g.Name, g.Avatar, g.CreatedAt)
		if err != nil {
			return translate(err)
		}

		batch := &pgx.Batch{}
		for _, member := range g.Members {
			batch.Queue(`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, g.ID, member)
		}
		return translate(tx.SendBatch(ctx, batch).Close())
	})
}

func (s *Store) GetGroup(ctx context.Context, id string) (group.Group, error) {
	groups, err := s.collectGroups(ctx, `WHERE g.id = $1`, id)
	if err != nil {
		return group.Group{}, err
	}
	if len(groups) == 0 {
		return group.Group{}, store.ErrNotFound
	}
	return groups[0], nil
}

func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]group.Group, error) {
	return s.collectGroups(ctx,
		`WHERE g.id IN (SELECT group_id FROM group_members WHERE user_id = $1)`, userID)
}

func (s *Store) collectGroups(ctx context.Context, where string, args ...any) ([]group.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.name, g.avatar, g.created_at,
		       ARRAY(SELECT m.user_id FROM group_members m WHERE m.group_id = g.id ORDER BY m.user_id)
		FROM groups g `+where+`
		ORDER BY g.created_at, g.id`, args...)
	if err != nil {
		return nil, translate(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (group.Group, error) {
		var g group.Group
		if err := row.Scan(&g.ID, &g.Name, &g.Avatar, &g.CreatedAt, &g.Members); err != nil {
			return group.Group{}, err
		}
		g.CreatedAt = g.CreatedAt.UTC()
		return g, nil
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
