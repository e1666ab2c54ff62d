package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/config"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	cfg := config.Default().Browser
	return NewSessionManager(cfg, t.TempDir(), "", zap.NewNop())
}

func TestRunExclusiveWithoutSession(t *testing.T) {
	m := newTestManager(t)
	err := m.RunExclusive(func() error {
		t.Fatal("must not run without a session")
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestFocusTabNil(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.FocusTab(nil), ErrSessionUnavailable)
}

func TestShutdownIdempotent(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsConnected())
	assert.Empty(t, m.Tabs())
	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
}
