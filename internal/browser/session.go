package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/domprobe/driver"
)

// Session is one tab. It implements driver.Page for the operations in the
// query, observer and extract packages.
type Session struct {
	page   *rod.Page
	router *rod.HijackRouter
	mgr    *Manager
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ driver.Page = (*Session)(nil)

// Open creates a tab. When url is non-empty the tab navigates to it.
func (m *Manager) Open(ctx context.Context, url string) (*Session, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var (
		page *rod.Page
		err  error
	)
	if m.cfg.Mode == ModePlain {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	s := &Session{page: page, mgr: m, logger: m.cfg.Logger}
	if len(m.cfg.BlockResources) > 0 {
		r, err := blockResources(page, m.cfg.BlockResources)
		if err != nil {
			s.logger.Warn("browser: resource blocking", "error", err)
		}
		s.router = r
	}
	if err := m.track(s); err != nil {
		s.closePage()
		return nil, err
	}

	if url != "" {
		if err := s.Navigate(ctx, url); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Navigate loads url and waits for the load event. A load that times out is
// logged, not returned: the document is usually usable.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p, err := s.live()
	if err != nil {
		return err
	}
	nctx, cancel := context.WithTimeout(ctx, s.mgr.cfg.NavigateTimeout)
	defer cancel()
	if err := p.Context(nctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.Context(nctx).WaitLoad(); err != nil {
		s.logger.Warn("browser: wait load", "url", url, "error", err)
	}
	s.logger.Info("browser: navigated", "url", url)
	return nil
}

// URL returns the current document URL.
func (s *Session) URL() string {
	p, err := s.live()
	if err != nil {
		return ""
	}
	info, err := p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close closes the tab. Later calls do nothing.
func (s *Session) Close() error {
	s.mgr.untrack(s)
	return s.closePage()
}

func (s *Session) closePage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			s.logger.Debug("browser: stop hijack router", "error", err)
		}
	}
	if err := s.page.Close(); err != nil {
		return fmt.Errorf("browser: close tab: %w", err)
	}
	return nil
}

func (s *Session) live() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, driver.ErrClosed
	}
	return s.page, nil
}
