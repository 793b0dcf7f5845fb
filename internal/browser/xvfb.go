package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// startXvfb runs the virtual display used by ModeHeadful.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	cmd := exec.Command("Xvfb", m.cfg.Display, "-screen", "0", "1920x1080x24", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	m.xvfb = cmd
	// Xvfb has no readiness signal.
	time.Sleep(500 * time.Millisecond)
	m.cfg.Logger.Info("browser: xvfb started", "display", m.cfg.Display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		_ = p.Kill()
		_ = m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.Display)
	m.xvfb = nil
}
