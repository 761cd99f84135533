package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/tgbridge/internal/store"
)

// Store implements store.Store on a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const contactColumns = "oid, uid, source, phone, name, peer, status, last_seen, verification, verified, created, updated"

// SaveContact implements store.ContactStore.
func (s *Store) SaveContact(ctx context.Context, c *store.Contact) error {
	ts := s.now().UTC()
	if c.OID == "" {
		oid := uuid.NewString()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO contacts (`+contactColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			oid, c.UID, c.Source, c.Phone, c.Name, c.Peer, c.Status,
			formatTime(c.LastSeen), c.Verification, boolInt(c.Verified),
			formatTime(ts), formatTime(ts),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert contact: %w", err)
		}
		c.OID, c.Created, c.Updated = oid, ts, ts
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET uid = ?, source = ?, phone = ?, name = ?, peer = ?, status = ?,
			last_seen = ?, verification = ?, verified = ?, updated = ?
		WHERE oid = ?`,
		c.UID, c.Source, c.Phone, c.Name, c.Peer, c.Status,
		formatTime(c.LastSeen), c.Verification, boolInt(c.Verified), formatTime(ts),
		c.OID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update contact: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	c.Updated = ts
	return nil
}

// LoadContacts implements store.ContactStore.
func (s *Store) LoadContacts(ctx context.Context, cond store.Conditions) ([]store.Contact, error) {
	where, args, err := whereClause(cond, store.ContactFields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+contactColumns+" FROM contacts"+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Contact
	for rows.Next() {
		var (
			c                          store.Contact
			lastSeen, created, updated string
			verified                   int
		)
		if err := rows.Scan(&c.OID, &c.UID, &c.Source, &c.Phone, &c.Name, &c.Peer, &c.Status,
			&lastSeen, &c.Verification, &verified, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan contact: %w", err)
		}
		c.Verified = verified != 0
		c.LastSeen = parseTime(lastSeen)
		c.Created = parseTime(created)
		c.Updated = parseTime(updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load contacts rows: %w", err)
	}
	return out, nil
}

// DeleteContact implements store.ContactStore.
func (s *Store) DeleteContact(ctx context.Context, oid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM contacts WHERE oid = ?", oid)
	if err != nil {
		return fmt.Errorf("sqlite: delete contact: %w", err)
	}
	return expectRow(res)
}

const messageColumns = "oid, telegram_id, peer, name, direction, text, status, date, sent, created, updated"

// SaveMessage implements store.MessageStore.
func (s *Store) SaveMessage(ctx context.Context, m *store.Message) error {
	ts := s.now().UTC()
	if m.OID == "" {
		oid := uuid.NewString()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			oid, m.TelegramID, m.Peer, m.Name, m.Direction, m.Text, string(m.Status),
			formatTime(m.Date), formatTime(m.Sent), formatTime(ts), formatTime(ts),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert message: %w", err)
		}
		m.OID, m.Created, m.Updated = oid, ts, ts
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET telegram_id = ?, peer = ?, name = ?, direction = ?, text = ?,
			status = ?, date = ?, sent = ?, updated = ?
		WHERE oid = ?`,
		m.TelegramID, m.Peer, m.Name, m.Direction, m.Text, string(m.Status),
		formatTime(m.Date), formatTime(m.Sent), formatTime(ts),
		m.OID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update message: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	m.Updated = ts
	return nil
}

// LoadMessages implements store.MessageStore.
func (s *Store) LoadMessages(ctx context.Context, cond store.Conditions) ([]store.Message, error) {
	where, args, err := whereClause(cond, store.MessageFields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+messageColumns+" FROM messages"+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Message
	for rows.Next() {
		var (
			m                               store.Message
			status, date, sent, created, up string
		)
		if err := rows.Scan(&m.OID, &m.TelegramID, &m.Peer, &m.Name, &m.Direction, &m.Text,
			&status, &date, &sent, &created, &up); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.Status = store.MessageStatus(status)
		m.Date = parseTime(date)
		m.Sent = parseTime(sent)
		m.Created = parseTime(created)
		m.Updated = parseTime(up)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load messages rows: %w", err)
	}
	return out, nil
}

// DeleteMessage implements store.MessageStore.
func (s *Store) DeleteMessage(ctx context.Context, oid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE oid = ?", oid)
	if err != nil {
		return fmt.Errorf("sqlite: delete message: %w", err)
	}
	return expectRow(res)
}

// DeleteMessages implements store.MessageStore.
func (s *Store) DeleteMessages(ctx context.Context, cond store.Conditions) (int, error) {
	where, args, err := whereClause(cond, store.MessageFields)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete messages: %w", err)
	}
	return int(n), nil
}

// whereClause renders cond as a WHERE clause. Field names are checked
// against allowed before they reach the query text.
func whereClause(cond store.Conditions, allowed []string) (string, []any, error) {
	if err := cond.Check(allowed); err != nil {
		return "", nil, err
	}
	if len(cond) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(cond))
	for f := range cond {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		v, err := conditionValue(f, cond[f])
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, f+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// conditionValue converts the textual condition to the column's type.
func conditionValue(field, value string) (any, error) {
	switch field {
	case "uid":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("sqlite: uid condition %q: %w", value, err)
		}
		return n, nil
	case "verified":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("sqlite: verified condition %q: %w", value, err)
		}
		return boolInt(b), nil
	}
	return value, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
