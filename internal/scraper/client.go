// Package scraper contains the per-service chat clients: stateful web
// scrapers that log in, discover conversations, extract message history
// from the rendered document and send outgoing messages, plus the
// normalizer that turns raw message blocks into canonical messages.
package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/njavet/unichat/internal/store"
)

// Transient document-state misses never surface as errors past the client
// boundary; these sentinels classify the per-message failures that do.
var (
	// ErrNoContent marks a block with no extractable message content,
	// e.g. a deleted-message placeholder.
	ErrNoContent = errors.New("message block has no content")
	// ErrBadAnnotation marks a content block whose timestamp+sender
	// annotation does not match the expected pattern.
	ErrBadAnnotation = errors.New("unparseable message annotation")
	// ErrBadTimestamp marks an annotation whose datetime matches no known
	// format.
	ErrBadTimestamp = errors.New("unparseable timestamp")
	// ErrUnknownContact marks a sender or recipient with no local contact
	// link. Unresolved external names are never auto-created.
	ErrUnknownContact = errors.New("no contact linked to external name")
	// ErrNotLinked is returned when an operation needs a contact's
	// service link and none exists.
	ErrNotLinked = errors.New("contact not linked to service")
)

// ChallengeKind classifies what the login flow needs next.
type ChallengeKind int

const (
	// ChallengeNone means the challenge could not be produced this
	// attempt; try again later.
	ChallengeNone ChallengeKind = iota
	// ChallengeQR carries a QR payload to render for scanning.
	ChallengeQR
	// ChallengeCredentials means the service wants a username/password
	// form filled.
	ChallengeCredentials
	// ChallengeLoggedIn is the already-logged-in sentinel.
	ChallengeLoggedIn
)

// Challenge is the login challenge handed to the UI layer.
type Challenge struct {
	Kind    ChallengeKind
	Payload string
}

// Draft is a canonical message candidate: normalized, contact-resolved,
// not yet persisted.
type Draft struct {
	FromContact string
	ToContact   string
	Service     string
	Text        string
	Timestamp   time.Time
}

// Client is the capability surface every chat service client implements.
// Clients compose the session manager and the store; they do not extend
// anything.
type Client interface {
	// Service returns the service name messages are tagged with.
	Service() string

	IsLoggedIn(ctx context.Context) (bool, error)
	// LoginChallenge produces the current login challenge, the LoggedIn
	// sentinel, or a None challenge on timeout.
	LoginChallenge(ctx context.Context) (Challenge, error)
	// AwaitLogin polls the logged-in indicator until timeout.
	AwaitLogin(ctx context.Context, timeout time.Duration) (bool, error)

	// ActiveChats lists up to limit active conversation names, sorted.
	ActiveChats(ctx context.Context, limit int) ([]string, error)
	// History extracts the full message history of a conversation,
	// oldest first.
	History(ctx context.Context, chatName string) ([]Draft, error)
	// LatestMessages extracts only messages newer than the last stored
	// one, already deduplicated against the store.
	LatestMessages(ctx context.Context, chatName string) ([]Draft, error)

	// SaveMessage persists a draft.
	SaveMessage(d Draft) (*store.Message, error)
	// SendText sends a text message to a linked contact.
	SendText(ctx context.Context, to *store.Contact, text string) error

	// Link binds an external conversation handle to a local contact.
	Link(handle string, contact *store.Contact) (*store.Link, error)
	Linked(contact *store.Contact) (bool, error)
}
