package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/store"
)

// newLinkedStore builds an in-memory store with an owner and one peer,
// both linked on the test service.
func newLinkedStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.AddContact("Trinity", true)
	require.NoError(t, err)
	_, err = st.AddContact("Neo", false)
	require.NoError(t, err)
	_, err = st.CreateLink("whatsapp", "Trinity", "Trinity-WA")
	require.NoError(t, err)
	_, err = st.CreateLink("whatsapp", "Neo", "Neo-WA")
	require.NoError(t, err)
	return st
}

func newTestNormalizer(t *testing.T, st *store.Store) *Normalizer {
	t.Helper()
	return NewNormalizer("whatsapp", st, "copyable-text", "data-pre-plain-text", "_akbu", zap.NewNop())
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2:05 PM, 3/1/2024", time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC)},
		{"14:02, 01.03.2024", time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)},
		{"14:02, 3/1/2024", time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)},
		{"14:02, 01.03.24", time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseTimestamp(c.in)
		require.NoError(t, err, c.in)
		assert.True(t, c.want.Equal(got), "%s: got %s", c.in, got)
	}

	_, err := ParseTimestamp("yesterday at noon")
	assert.ErrorIs(t, err, ErrBadTimestamp)
}

func messageBlock(annotation, text string) string {
	return `<div class="x9f619 x1hx0egp x1yrsyyn">` +
		`<div class="copyable-text" data-pre-plain-text="` + annotation + `">` +
		`<span class="_akbu selectable-text"><span>` + text + `</span></span>` +
		`</div></div>`
}

func TestParseBlockIncoming(t *testing.T) {
	st := newLinkedStore(t)
	n := newTestNormalizer(t, st)

	d, err := n.ParseBlock(messageBlock("[14:02, 01.03.24] Neo-WA: ", "hello"), "Neo-WA", "Trinity-WA")
	require.NoError(t, err)
	assert.Equal(t, "Neo", d.FromContact)
	assert.Equal(t, "Trinity", d.ToContact)
	assert.Equal(t, "whatsapp", d.Service)
	assert.Equal(t, "hello", d.Text)
	assert.True(t, time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC).Equal(d.Timestamp))
}

func TestParseBlockOutgoing(t *testing.T) {
	st := newLinkedStore(t)
	n := newTestNormalizer(t, st)

	// Sent by the owner: recipient is the conversation's contact.
	d, err := n.ParseBlock(messageBlock("[14:03, 01.03.24] Trinity-WA: ", "follow the white rabbit"), "Neo-WA", "Trinity-WA")
	require.NoError(t, err)
	assert.Equal(t, "Trinity", d.FromContact)
	assert.Equal(t, "Neo", d.ToContact)
	assert.Equal(t, "follow the white rabbit", d.Text)
}

func TestParseBlockFailures(t *testing.T) {
	st := newLinkedStore(t)
	n := newTestNormalizer(t, st)

	// No content node at all: a date divider or system notice.
	_, err := n.ParseBlock(`<div class="x9f619"><span>TODAY</span></div>`, "Neo-WA", "Trinity-WA")
	assert.ErrorIs(t, err, ErrNoContent)

	_, err = n.ParseBlock(messageBlock("no brackets here", "hi"), "Neo-WA", "Trinity-WA")
	assert.ErrorIs(t, err, ErrBadAnnotation)

	_, err = n.ParseBlock(messageBlock("[not a time] Neo-WA: ", "hi"), "Neo-WA", "Trinity-WA")
	assert.ErrorIs(t, err, ErrBadTimestamp)

	// Sender with no contact link is skipped, never auto-created.
	_, err = n.ParseBlock(messageBlock("[14:02, 01.03.24] Smith-WA: ", "hi"), "Neo-WA", "Trinity-WA")
	assert.ErrorIs(t, err, ErrUnknownContact)
	c, err := st.Contact("Smith-WA")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestFilterNew(t *testing.T) {
	st := newLinkedStore(t)
	n := newTestNormalizer(t, st)

	cutoff := time.Date(2024, 3, 1, 13, 59, 0, 0, time.UTC)
	_, err := st.CreateMessage("Neo", "Trinity", "whatsapp", "stored", "", "", cutoff)
	require.NoError(t, err)

	draft := func(text string, ts time.Time) Draft {
		return Draft{FromContact: "Neo", ToContact: "Trinity", Service: "whatsapp", Text: text, Timestamp: ts}
	}
	drafts := []Draft{
		// stored and not newer: dropped
		draft("stored", cutoff),
		// newer than cutoff: kept
		draft("new", cutoff.Add(6*time.Minute)),
		// older but never stored: kept
		draft("missed", cutoff.Add(-9*time.Minute)),
		// same text, newer timestamp: kept
		draft("stored", cutoff.Add(time.Minute)),
	}
	out, err := n.FilterNew(drafts, cutoff)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "new", out[0].Text)
	assert.Equal(t, "missed", out[1].Text)

	// Idempotence: persisting the survivors and re-filtering yields nothing.
	for _, d := range out {
		_, err := st.CreateMessage(d.FromContact, d.ToContact, d.Service, d.Text, "", "", d.Timestamp)
		require.NoError(t, err)
	}
	out, err = n.FilterNew(drafts, cutoff.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, out)
}
