package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAddContactDuplicate(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddContact("Neo", false)
	require.NoError(t, err)
	_, err = st.AddContact("Neo", false)
	assert.ErrorIs(t, err, ErrDuplicateContact)
}

func TestContactLookups(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddContact("Trinity", true)
	require.NoError(t, err)

	c, err := st.Contact("Trinity")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.IsOwner)

	c, err = st.Contact("Smith")
	require.NoError(t, err)
	assert.Nil(t, c)

	owner, err := st.Owner()
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "Trinity", owner.Name)
}

func TestContactsOrder(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"Neo", "Oracle"} {
		_, err := st.AddContact(name, false)
		require.NoError(t, err)
	}
	_, err := st.AddContact("Trinity", true)
	require.NoError(t, err)

	all, err := st.Contacts()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Trinity", all[0].Name) // owner first
	assert.Equal(t, "Neo", all[1].Name)
	assert.Equal(t, "Oracle", all[2].Name)
}

func TestCreateLinkIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddContact("Neo", false)
	require.NoError(t, err)

	first, err := st.CreateLink("whatsapp", "Neo", "Neo-WA")
	require.NoError(t, err)
	assert.False(t, first.Linked)

	// Second create returns the existing link unchanged, even with a
	// different handle.
	second, err := st.CreateLink("whatsapp", "Neo", "Mr-Anderson")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Neo-WA", second.Handle)

	require.NoError(t, st.MarkLinked("whatsapp", "Neo"))
	link, err := st.LinkByContact("whatsapp", "Neo")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.True(t, link.Linked)
}

func TestContactByHandle(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddContact("Neo", false)
	require.NoError(t, err)
	_, err = st.CreateLink("whatsapp", "Neo", "Neo-WA")
	require.NoError(t, err)

	c, err := st.ContactByHandle("whatsapp", "Neo-WA")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Neo", c.Name)

	// Same handle on another service resolves to nothing.
	c, err = st.ContactByHandle("instagram", "Neo-WA")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestOwnerLink(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddContact("Trinity", true)
	require.NoError(t, err)
	_, err = st.AddContact("Neo", false)
	require.NoError(t, err)
	_, err = st.CreateLink("whatsapp", "Neo", "Neo-WA")
	require.NoError(t, err)

	link, err := st.OwnerLink("whatsapp")
	require.NoError(t, err)
	assert.Nil(t, link)

	_, err = st.CreateLink("whatsapp", "Trinity", "Trinity-WA")
	require.NoError(t, err)
	link, err = st.OwnerLink("whatsapp")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "Trinity-WA", link.Handle)
}

func TestMessagesOrderAndLimit(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"Trinity", "Neo"} {
		_, err := st.AddContact(name, name == "Trinity")
		require.NoError(t, err)
	}
	base := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	// Insert out of timestamp order; retrieval follows insertion order.
	_, err := st.CreateMessage("Neo", "Trinity", "whatsapp", "first", "", "", base.Add(time.Minute))
	require.NoError(t, err)
	_, err = st.CreateMessage("Trinity", "Neo", "whatsapp", "second", "", "", base)
	require.NoError(t, err)
	_, err = st.CreateMessage("Neo", "Trinity", "instagram", "other service", "", "", base)
	require.NoError(t, err)

	msgs, err := st.Messages("Trinity", "Neo", "whatsapp", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Text)
	assert.Equal(t, "first", msgs[1].Text)

	last, err := st.LastMessage("Neo", "Trinity", "whatsapp")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "second", last.Text)

	msgs, err = st.Messages("Trinity", "Neo", "whatsapp", 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	last, err = st.LastMessage("Trinity", "Oracle", "whatsapp")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMessageExists(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"Trinity", "Neo"} {
		_, err := st.AddContact(name, false)
		require.NoError(t, err)
	}
	ts := time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)
	_, err := st.CreateMessage("Neo", "Trinity", "whatsapp", "hello", "", "", ts)
	require.NoError(t, err)

	exists, err := st.MessageExists("Neo", "Trinity", "whatsapp", ts, "hello")
	require.NoError(t, err)
	assert.True(t, exists)

	for _, tc := range []struct {
		from, to, service, text string
		ts                      time.Time
	}{
		{"Trinity", "Neo", "whatsapp", "hello", ts},
		{"Neo", "Trinity", "instagram", "hello", ts},
		{"Neo", "Trinity", "whatsapp", "hello!", ts},
		{"Neo", "Trinity", "whatsapp", "hello", ts.Add(time.Minute)},
	} {
		exists, err := st.MessageExists(tc.from, tc.to, tc.service, tc.ts, tc.text)
		require.NoError(t, err)
		assert.False(t, exists, "%+v", tc)
	}
}

func TestRemoveContactCascades(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"Trinity", "Neo"} {
		_, err := st.AddContact(name, false)
		require.NoError(t, err)
	}
	_, err := st.CreateLink("whatsapp", "Neo", "Neo-WA")
	require.NoError(t, err)
	ts := time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)
	_, err = st.CreateMessage("Neo", "Trinity", "whatsapp", "hello", "", "", ts)
	require.NoError(t, err)
	_, err = st.CreateMessage("Trinity", "Neo", "whatsapp", "hi", "", "", ts)
	require.NoError(t, err)

	removed, err := st.RemoveContact("Neo")
	require.NoError(t, err)
	assert.True(t, removed)

	link, err := st.LinkByContact("whatsapp", "Neo")
	require.NoError(t, err)
	assert.Nil(t, link)
	msgs, err := st.Messages("Trinity", "Neo", "whatsapp", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	removed, err = st.RemoveContact("Neo")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTimestampsStoredAsUTC(t *testing.T) {
	st := newTestStore(t)
	for _, name := range []string{"Trinity", "Neo"} {
		_, err := st.AddContact(name, false)
		require.NoError(t, err)
	}
	zone := time.FixedZone("CET", 3600)
	local := time.Date(2024, 3, 1, 15, 2, 0, 0, zone)
	_, err := st.CreateMessage("Neo", "Trinity", "whatsapp", "hello", "", "", local)
	require.NoError(t, err)

	last, err := st.LastMessage("Neo", "Trinity", "whatsapp")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, local.UTC().Equal(last.Timestamp))
	// The same instant expressed in UTC dedups against the stored row.
	exists, err := st.MessageExists("Neo", "Trinity", "whatsapp", local.UTC(), "hello")
	require.NoError(t, err)
	assert.True(t, exists)
}
