// Package browser owns the single shared Chrome instance. All scrapers
// multiplex logical tabs (one per external service origin) over it, and
// every command against the live document goes through RunExclusive: the
// automation protocol allows one in-flight command per session, so
// concurrent callers must serialize or their navigation and typing
// interleave against one document.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/njavet/unichat/internal/config"
)

// ErrSessionUnavailable reports that the browser process is gone. Fatal
// for all further automation calls until the manager is restarted; the
// caller owns restart policy.
var ErrSessionUnavailable = errors.New("browser session unavailable")

// Tab is the public metadata for a tracked service tab.
type Tab struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	TargetID  string    `json:"target_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type tabRecord struct {
	meta Tab
	page *rod.Page
}

// SessionManager owns the Chrome instance and the origin-keyed tab
// registry. At most one tab per origin is ever created.
type SessionManager struct {
	cfg          config.BrowserConfig
	userDataDir  string
	tabStorePath string
	log          *zap.Logger

	mu      sync.RWMutex
	browser *rod.Browser
	tabs    map[string]*tabRecord

	// cmdMu is the exclusive-access gate for driver commands.
	cmdMu sync.Mutex
}

// NewSessionManager creates a manager. userDataDir is the persistent
// Chrome profile (login cookies survive restarts); tabStorePath persists
// tab metadata between runs and may be empty.
func NewSessionManager(cfg config.BrowserConfig, userDataDir, tabStorePath string, log *zap.Logger) *SessionManager {
	return &SessionManager{
		cfg:          cfg,
		userDataDir:  userDataDir,
		tabStorePath: tabStorePath,
		log:          log,
		tabs:         make(map[string]*tabRecord),
	}
}

// Start connects to an already-running Chrome on the configured debug port
// if one is listening, otherwise launches a new instance. Idempotent while
// the connection stays healthy.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.tabs = make(map[string]*tabRecord)
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	m.browser = b
	m.log.Info("browser session started", zap.String("control_url", controlURL))
	return nil
}

// resolveControlURL prefers taking over an existing instance on the debug
// port to avoid duplicate windows.
func (m *SessionManager) resolveControlURL() (string, error) {
	hostPort := net.JoinHostPort(m.cfg.DebugHost, strconv.Itoa(m.cfg.DebugPort))
	if conn, err := net.DialTimeout("tcp", hostPort, 500*time.Millisecond); err == nil {
		conn.Close()
		m.log.Info("reusing running browser", zap.String("addr", hostPort))
		u, err := launcher.ResolveURL(hostPort)
		if err != nil {
			return "", fmt.Errorf("resolve devtools url: %w", err)
		}
		return u, nil
	}

	m.log.Info("launching new browser", zap.Bool("headless", m.cfg.Headless))
	l := launcher.New().
		Headless(m.cfg.Headless).
		UserDataDir(m.userDataDir).
		Set(flags.RemoteDebuggingPort, strconv.Itoa(m.cfg.DebugPort)).
		Set(flags.Flag("lang"), "en").
		Set(flags.Flag("accept-lang"), "en")
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch chrome: %w", err)
	}
	return u, nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// IsConnected reports whether a browser handle is held.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// OpenOrFocusTab returns the tab for origin, creating it only if neither
// the registry nor the live browser already has a page on that origin.
func (m *SessionManager) OpenOrFocusTab(ctx context.Context, origin string) (*rod.Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return nil, ErrSessionUnavailable
	}

	if rec, ok := m.tabs[origin]; ok && rec.page != nil {
		_, _ = rec.page.Activate()
		return rec.page, nil
	}

	// A previous run (or the user) may have the origin open already.
	pages, err := m.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.Contains(info.URL, origin) {
			m.trackTabLocked(origin, p)
			_, _ = p.Activate()
			return p, nil
		}
	}

	page, err := m.browser.Page(proto.TargetCreateTarget{URL: origin})
	if err != nil {
		return nil, fmt.Errorf("open tab for %s: %w", origin, err)
	}
	_ = page.Timeout(m.cfg.NavigationTimeout()).WaitLoad()
	m.trackTabLocked(origin, page)
	return page, nil
}

// FocusTab raises the given tab.
func (m *SessionManager) FocusTab(page *rod.Page) error {
	if page == nil {
		return ErrSessionUnavailable
	}
	_, err := page.Activate()
	return err
}

// RunExclusive executes fn under the command mutex. Every scraper
// operation touching the live document must go through here.
func (m *SessionManager) RunExclusive(fn func() error) error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	m.mu.RLock()
	alive := m.browser != nil
	m.mu.RUnlock()
	if !alive {
		return ErrSessionUnavailable
	}
	return fn()
}

// Tabs returns metadata for all tracked tabs.
func (m *SessionManager) Tabs() []Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tab, 0, len(m.tabs))
	for _, rec := range m.tabs {
		out = append(out, rec.meta)
	}
	return out
}

// Shutdown closes tracked tabs and the browser.
func (m *SessionManager) Shutdown() error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	for origin, rec := range m.tabs {
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(m.tabs, origin)
	}
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	return err
}

func (m *SessionManager) trackTabLocked(origin string, page *rod.Page) {
	m.tabs[origin] = &tabRecord{
		meta: Tab{
			ID:        uuid.NewString(),
			Origin:    origin,
			TargetID:  string(page.TargetID),
			CreatedAt: time.Now(),
		},
		page: page,
	}
	if err := m.persistTabsLocked(); err != nil {
		m.log.Debug("persist tab metadata failed", zap.Error(err))
	}
}

func (m *SessionManager) persistTabsLocked() error {
	if m.tabStorePath == "" {
		return nil
	}
	tabs := make([]Tab, 0, len(m.tabs))
	for _, rec := range m.tabs {
		tabs = append(tabs, rec.meta)
	}
	data, err := json.MarshalIndent(tabs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.tabStorePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.tabStorePath, data, 0o644)
}
