package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, 5*time.Second, cfg.ShortTimeout())
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Fetcher.PollInterval())
	assert.Equal(t, "https://web.whatsapp.com/", cfg.WhatsApp.URL)
	assert.NotEmpty(t, cfg.WhatsApp.Selectors.QRCode)
	assert.NotEmpty(t, cfg.Instagram.Selectors.LoginFields)
	assert.Equal(t, filepath.Join(cfg.DataDir, "unichat.db"), cfg.DatabasePath())
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().WhatsApp.URL, cfg.WhatsApp.URL)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
timeout_sec: 10
browser:
  headless: false
  debug_port: 9333
whatsapp:
  selectors:
    qr_code: ".new-qr"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 9333, cfg.Browser.DebugPort)
	assert.Equal(t, ".new-qr", cfg.WhatsApp.Selectors.QRCode)
	// Untouched keys keep their defaults.
	assert.Equal(t, "data-ref", cfg.WhatsApp.Selectors.QRCodeAttr)
	assert.Equal(t, Default().Instagram.URL, cfg.Instagram.URL)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestProviderReplace(t *testing.T) {
	p := NewProvider(Default())
	assert.True(t, p.Get().Browser.Headless)

	cfg := Default()
	cfg.Browser.Headless = false
	p.Replace(cfg)
	assert.False(t, p.Get().Browser.Headless)
}

func TestWatchMissingFileIsNoop(t *testing.T) {
	p := NewProvider(Default())
	stop, err := p.Watch(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	require.NoError(t, err)
	stop()
}

func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout_sec: 60\n"), 0o644))

	p := NewProvider(Default())
	stop, err := p.Watch(path, zap.NewNop())
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("timeout_sec: 7\n"), 0o644))
	require.Eventually(t, func() bool {
		return p.Get().Timeout() == 7*time.Second
	}, 5*time.Second, 10*time.Millisecond)
}
