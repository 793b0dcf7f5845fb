// Package browser runs the Chrome instance domprobe inspects: it launches a
// local headless-shell (or connects to a remote one), recycles it on a
// lifetime or heap threshold, and opens Sessions that implement driver.Page.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Mode selects how Chrome is driven.
type Mode int

const (
	ModeHeadless Mode = iota // headless + stealth patches
	ModeHeadful              // headful under Xvfb + stealth patches
	ModePlain                // headless, no stealth patches
)

// ParseMode maps a config string to a Mode. Unknown values give ModeHeadless.
func ParseMode(s string) Mode {
	switch s {
	case "headful":
		return ModeHeadful
	case "plain":
		return ModePlain
	}
	return ModeHeadless
}

func (m Mode) String() string {
	switch m {
	case ModeHeadful:
		return "headful"
	case ModePlain:
		return "plain"
	}
	return "headless"
}

// Config configures the Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local one.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	Mode Mode

	// HeapLimit recycles Chrome when the first page's JS heap exceeds it.
	// Default: 1GB.
	HeapLimit int64

	// RecycleInterval is the longest a Chrome process may live. Default: 4h.
	RecycleInterval time.Duration

	// BlockResources lists resource types never fetched (images, fonts,
	// media, stylesheets).
	BlockResources []string

	// NavigateTimeout bounds Navigate. Default: 30s.
	NavigateTimeout time.Duration

	// Display is the Xvfb display for ModeHeadful. Default: ":99".
	Display string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HeapLimit <= 0 {
		c.HeapLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Display == "" {
		c.Display = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process. Sessions opened before a recycle are
// closed by it; callers open new ones.
type Manager struct {
	cfg      Config
	mu       sync.RWMutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	xvfb     *exec.Cmd
	started  time.Time
	closed   bool
	sessions map[*Session]struct{}
}

// NewManager creates a Manager. Call Start before opening sessions.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, sessions: make(map[*Session]struct{})}
}

// Start launches or connects to Chrome and starts the recycle monitor, which
// stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.started = time.Now()
	go m.monitor(ctx)
	return nil
}

// Browser returns the current Chrome handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome. Open sessions are closed first.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.started), "sessions", len(m.sessions))
	m.closeSessionsLocked()
	m.shutdownLocked()
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.started = time.Now()
	return nil
}

// Close ends every session and stops Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.closeSessionsLocked()
	m.shutdownLocked()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger
	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Mode != ModeHeadful)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.Mode == ModeHeadful {
			l = l.Env("DISPLAY=" + m.cfg.Display)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors", "error", err)
	}
	return b, nil
}

func (m *Manager) closeSessionsLocked() {
	for s := range m.sessions {
		s.closePage()
	}
	clear(m.sessions)
}

func (m *Manager) shutdownLocked() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

func (m *Manager) track(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	m.sessions[s] = struct{}{}
	return nil
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
}

// monitor recycles Chrome when it has lived too long or its heap grew past
// the limit.
func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, started := m.closed, m.browser, m.started
		m.mu.RUnlock()
		if closed || b == nil {
			return
		}

		if time.Since(started) > m.cfg.RecycleInterval {
			log.Info("browser: recycle interval reached")
			if err := m.Recycle(); err != nil {
				log.Error("browser: recycle", "error", err)
			}
			continue
		}

		used, err := heapUsage(ctx, b)
		if err != nil {
			log.Debug("browser: heap check", "error", err)
			continue
		}
		if used > m.cfg.HeapLimit {
			log.Info("browser: heap limit exceeded", "used", used, "limit", m.cfg.HeapLimit)
			if err := m.Recycle(); err != nil {
				log.Error("browser: recycle", "error", err)
			}
		}
	}
}

func heapUsage(ctx context.Context, b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("browser: no page to sample")
	}
	res, err := pages[0].Context(ctx).Eval(`() => (performance.memory ? performance.memory.usedJSHeapSize : 0)`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
