package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Contact is a local identity. Exactly one contact is the owner.
type Contact struct {
	Name       string
	AvatarPath string
	IsOwner    bool
}

// AddContact creates a contact. Returns ErrDuplicateContact when the name
// is taken; the caller presents that as a user-correctable error.
func (s *Store) AddContact(name string, isOwner bool) (*Contact, error) {
	_, err := s.db.Exec(
		`INSERT INTO contacts (name, is_owner) VALUES (?, ?)`, name, boolInt(isOwner))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, ErrDuplicateContact
		}
		return nil, fmt.Errorf("add contact: %w", err)
	}
	return &Contact{Name: name, IsOwner: isOwner}, nil
}

// RemoveContact deletes a contact by name. Links and messages referencing
// it go with it (foreign-key cascade). Reports whether a row was removed.
func (s *Store) RemoveContact(name string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM contacts WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("remove contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Contact looks up a contact by name. Returns (nil, nil) when absent.
func (s *Store) Contact(name string) (*Contact, error) {
	return s.scanContact(
		`SELECT name, avatar_path, is_owner FROM contacts WHERE name = ?`, name)
}

// Owner returns the owner contact, or (nil, nil) when none exists yet.
func (s *Store) Owner() (*Contact, error) {
	return s.scanContact(
		`SELECT name, avatar_path, is_owner FROM contacts WHERE is_owner = 1`)
}

func (s *Store) scanContact(query string, args ...any) (*Contact, error) {
	var c Contact
	var owner int
	err := s.db.QueryRow(query, args...).Scan(&c.Name, &c.AvatarPath, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}
	c.IsOwner = owner != 0
	return &c, nil
}

// Contacts returns all contacts, owner first, then by name.
func (s *Store) Contacts() ([]Contact, error) {
	rows, err := s.db.Query(
		`SELECT name, avatar_path, is_owner FROM contacts ORDER BY is_owner DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var owner int
		if err := rows.Scan(&c.Name, &c.AvatarPath, &owner); err != nil {
			return nil, err
		}
		c.IsOwner = owner != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
