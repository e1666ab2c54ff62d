package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/browser"
	"github.com/njavet/unichat/internal/config"
	"github.com/njavet/unichat/internal/scraper"
	"github.com/njavet/unichat/internal/store"
)

// fakeClient hands out one queued batch of drafts per poll.
type fakeClient struct {
	st *store.Store

	mu      sync.Mutex
	pending [][]scraper.Draft
	err     error
}

func (f *fakeClient) Service() string { return "fake" }

func (f *fakeClient) IsLoggedIn(context.Context) (bool, error) { return true, nil }

func (f *fakeClient) LoginChallenge(context.Context) (scraper.Challenge, error) {
	return scraper.Challenge{Kind: scraper.ChallengeLoggedIn}, nil
}

func (f *fakeClient) AwaitLogin(context.Context, time.Duration) (bool, error) { return true, nil }

func (f *fakeClient) ActiveChats(context.Context, int) ([]string, error) { return nil, nil }

func (f *fakeClient) History(context.Context, string) ([]scraper.Draft, error) { return nil, nil }

func (f *fakeClient) LatestMessages(context.Context, string) ([]scraper.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pending) == 0 {
		return nil, nil
	}
	next := f.pending[0]
	f.pending = f.pending[1:]
	return next, nil
}

func (f *fakeClient) SaveMessage(d scraper.Draft) (*store.Message, error) {
	return f.st.CreateMessage(d.FromContact, d.ToContact, d.Service, d.Text, "", "", d.Timestamp)
}

func (f *fakeClient) SendText(context.Context, *store.Contact, string) error { return nil }

func (f *fakeClient) Link(handle string, c *store.Contact) (*store.Link, error) {
	return f.st.CreateLink("fake", c.Name, handle)
}

func (f *fakeClient) Linked(*store.Contact) (bool, error) { return true, nil }

func (f *fakeClient) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func newTestPoller(t *testing.T) (*Poller, *fakeClient, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.AddContact("Trinity", true)
	require.NoError(t, err)
	_, err = st.AddContact("Neo", false)
	require.NoError(t, err)
	_, err = st.CreateLink("fake", "Neo", "Neo-F")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Fetcher.IntervalMs = 5
	fc := &fakeClient{st: st}
	return New(fc, st, config.NewProvider(cfg), zap.NewNop()), fc, st
}

func TestPollerDeliversAndPersists(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	p, fc, st := newTestPoller(t)
	ts := time.Date(2024, 3, 1, 14, 2, 0, 0, time.UTC)
	fc.pending = [][]scraper.Draft{{
		{FromContact: "Neo", ToContact: "Trinity", Service: "fake", Text: "hello", Timestamp: ts},
	}}

	require.NoError(t, p.ChangeTarget(&store.Contact{Name: "Neo"}))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case batch := <-p.Updates():
		require.Len(t, batch.Messages, 1)
		assert.Equal(t, "fake", batch.Service)
		assert.Equal(t, "hello", batch.Messages[0].Text)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	last, err := st.LastMessage("Neo", "Trinity", "fake")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "hello", last.Text)

	p.Stop()
	require.NoError(t, <-done)
}

func TestPollerIdleWithoutTarget(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	p, fc, _ := newTestPoller(t)
	fc.pending = [][]scraper.Draft{{
		{FromContact: "Neo", ToContact: "Trinity", Service: "fake", Text: "hello"},
	}}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case batch := <-p.Updates():
		t.Fatalf("unexpected batch: %+v", batch)
	case <-time.After(50 * time.Millisecond):
	}

	p.Stop()
	require.NoError(t, <-done)
}

func TestPollerChangeTargetRequiresLink(t *testing.T) {
	p, _, _ := newTestPoller(t)
	err := p.ChangeTarget(&store.Contact{Name: "Trinity"})
	assert.ErrorIs(t, err, scraper.ErrNotLinked)

	require.NoError(t, p.ChangeTarget(nil))
	assert.Empty(t, p.currentTarget())
}

func TestPollerStopsWhenSessionDies(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	p, fc, _ := newTestPoller(t)
	fc.setErr(browser.ErrSessionUnavailable)
	require.NoError(t, p.ChangeTarget(&store.Contact{Name: "Neo"}))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, browser.ErrSessionUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("poller kept running")
	}
	// Updates is closed on exit.
	_, open := <-p.Updates()
	assert.False(t, open)
}
