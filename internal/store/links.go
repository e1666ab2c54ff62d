package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Link binds a local contact to one external service's conversation
// handle. Linked distinguishes "placeholder created" from "history
// imported".
type Link struct {
	ID          int64
	Service     string
	ContactName string
	Handle      string
	Linked      bool
}

// CreateLink records the link for (service, contact). At most one link per
// pair exists; an existing link is returned unchanged, matching the
// lookup-before-create behavior the linking flow relies on.
func (s *Store) CreateLink(service, contactName, handle string) (*Link, error) {
	if existing, err := s.LinkByContact(service, contactName); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	res, err := s.db.Exec(
		`INSERT INTO links (service, contact_name, handle, linked) VALUES (?, ?, ?, 0)`,
		service, contactName, handle)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Link{ID: id, Service: service, ContactName: contactName, Handle: handle}, nil
}

// MarkLinked flips the link to "history imported".
func (s *Store) MarkLinked(service, contactName string) error {
	_, err := s.db.Exec(
		`UPDATE links SET linked = 1 WHERE service = ? AND contact_name = ?`,
		service, contactName)
	if err != nil {
		return fmt.Errorf("mark linked: %w", err)
	}
	return nil
}

// LinkByContact returns the contact's link for a service, or (nil, nil).
func (s *Store) LinkByContact(service, contactName string) (*Link, error) {
	return s.scanLink(
		`SELECT id, service, contact_name, handle, linked FROM links
		 WHERE service = ? AND contact_name = ?`, service, contactName)
}

// ContactByHandle resolves a service-side handle to the local contact.
// Returns (nil, nil) when no link claims the handle; the normalizer treats
// that as an unknown external identity and skips the message.
func (s *Store) ContactByHandle(service, handle string) (*Contact, error) {
	link, err := s.scanLink(
		`SELECT id, service, contact_name, handle, linked FROM links
		 WHERE service = ? AND handle = ?`, service, handle)
	if err != nil || link == nil {
		return nil, err
	}
	return s.Contact(link.ContactName)
}

// OwnerLink returns the owner's link for a service, or (nil, nil).
func (s *Store) OwnerLink(service string) (*Link, error) {
	return s.scanLink(
		`SELECT l.id, l.service, l.contact_name, l.handle, l.linked
		 FROM links l JOIN contacts c ON c.name = l.contact_name
		 WHERE l.service = ? AND c.is_owner = 1`, service)
}

func (s *Store) scanLink(query string, args ...any) (*Link, error) {
	var l Link
	var linked int
	err := s.db.QueryRow(query, args...).Scan(&l.ID, &l.Service, &l.ContactName, &l.Handle, &linked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query link: %w", err)
	}
	l.Linked = linked != 0
	return &l, nil
}
