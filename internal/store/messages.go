package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Message is immutable once created. Text and media paths are mutually
// exclusive by intent, though not enforced as a constraint.
type Message struct {
	ID          int64
	FromContact string
	ToContact   string
	Service     string
	Text        string
	PhotoPath   string
	VideoPath   string
	Timestamp   time.Time
}

// timestampLayout fixes how timestamps are serialized. Scraped times are
// already pinned to UTC by the normalizer.
const timestampLayout = time.RFC3339

// CreateMessage stores a message and returns it with its row id.
func (s *Store) CreateMessage(from, to, service, text, photoPath, videoPath string, ts time.Time) (*Message, error) {
	res, err := s.db.Exec(
		`INSERT INTO messages (from_contact, to_contact, service, text, photo_path, video_path, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		from, to, service, nullable(text), nullable(photoPath), nullable(videoPath),
		ts.UTC().Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Message{
		ID: id, FromContact: from, ToContact: to, Service: service,
		Text: text, PhotoPath: photoPath, VideoPath: videoPath, Timestamp: ts.UTC(),
	}, nil
}

// MessageExists reports whether a message matching all five identity
// fields exactly is already stored. This is the dedup check.
func (s *Store) MessageExists(from, to, service string, ts time.Time, text string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM messages
		 WHERE from_contact = ? AND to_contact = ? AND service = ?
		   AND timestamp = ? AND text = ? LIMIT 1`,
		from, to, service, ts.UTC().Format(timestampLayout), text).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("message exists: %w", err)
	}
	return true, nil
}

// Messages returns the conversation between two contacts on a service,
// most recent first. Ordered by row id: insertion order is the only total
// order available since timestamps collide within a minute. limit < 1
// means no limit.
func (s *Store) Messages(contactA, contactB, service string, limit int) ([]Message, error) {
	query := `
	SELECT id, from_contact, to_contact, service, text, photo_path, video_path, timestamp
	FROM messages
	WHERE service = ?
	  AND ((from_contact = ? AND to_contact = ?) OR (from_contact = ? AND to_contact = ?))
	ORDER BY id DESC`
	args := []any{service, contactA, contactB, contactB, contactA}
	if limit >= 1 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var text, photo, video sql.NullString
		var ts string
		if err := rows.Scan(&m.ID, &m.FromContact, &m.ToContact, &m.Service,
			&text, &photo, &video, &ts); err != nil {
			return nil, err
		}
		m.Text, m.PhotoPath, m.VideoPath = text.String, photo.String, video.String
		m.Timestamp, err = time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("stored timestamp %q: %w", ts, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastMessage returns the newest stored message of the conversation, or
// (nil, nil) when the conversation is empty.
func (s *Store) LastMessage(contactA, contactB, service string) (*Message, error) {
	msgs, err := s.Messages(contactA, contactB, service, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
