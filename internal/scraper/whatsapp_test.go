package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/browser"
	"github.com/njavet/unichat/internal/config"
	"github.com/njavet/unichat/internal/store"
)

func newTestWhatsApp(t *testing.T, st *store.Store) *WhatsApp {
	t.Helper()
	cfg := config.Default()
	sm := browser.NewSessionManager(cfg.Browser, t.TempDir(), "", zap.NewNop())
	return NewWhatsApp(sm, st, config.NewProvider(cfg), zap.NewNop())
}

func TestMePrefersStoredOwnerLink(t *testing.T) {
	st := newLinkedStore(t)
	w := newTestWhatsApp(t, st)

	// Resolves from the link table without touching the browser.
	me, err := w.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Trinity-WA", me)
}

func TestEnsureSelfLinkEmptyHandle(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = st.AddContact("Trinity", true)
	require.NoError(t, err)
	// An owner link with an empty handle yields an empty own name with no
	// scrape error behind it.
	_, err = st.CreateLink("whatsapp", "Trinity", "")
	require.NoError(t, err)

	w := newTestWhatsApp(t, st)
	err = w.ensureSelfLink(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "%!w")
}

func TestEnsureSelfLinkRequiresOwner(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	w := newTestWhatsApp(t, st)
	assert.Error(t, w.ensureSelfLink(context.Background()))
}
